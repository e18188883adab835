package log

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

type formatter struct {
	pattern string
	time    string
}

// Format renders the %time, %level, %field and %msg placeholders of pattern.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	layout := f.time
	if layout == "" {
		layout = "2006-01-02 15:04:05.000"
	}
	output := f.pattern
	output = strings.Replace(output, "%time", entry.Time.Format(layout), 1)
	output = strings.Replace(output, "%level", entry.Level.String(), 1)
	output = strings.Replace(output, "%field", buildFields(entry), 1)
	output = strings.Replace(output, "%msg", entry.Message, 1)
	if !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	return []byte(output), nil
}

// buildFields renders entry fields as sorted key=value pairs.
func buildFields(entry *logrus.Entry) string {
	keys := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fields := make([]string, 0, len(keys))
	for _, key := range keys {
		val := entry.Data[key]
		stringVal, ok := val.(string)
		if !ok {
			stringVal = fmt.Sprint(val)
		}
		fields = append(fields, key+"="+stringVal)
	}
	return strings.Join(fields, ",")
}
