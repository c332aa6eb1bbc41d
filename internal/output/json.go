package output

import (
	"encoding/json"

	"github.com/padillasconcrete/siteapi/internal/core"
)

// JSONFormatter renders listings as JSON arrays. Nil slices render as [].
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatAttemptLogs(logs []core.AttemptLog) (string, error) {
	if logs == nil {
		logs = []core.AttemptLog{}
	}
	return f.marshal(logs)
}

func (f *JSONFormatter) FormatMessages(messages []core.ContactMessage) (string, error) {
	if messages == nil {
		messages = []core.ContactMessage{}
	}
	return f.marshal(messages)
}

func (f *JSONFormatter) FormatUsers(users []core.User) (string, error) {
	if users == nil {
		users = []core.User{}
	}
	return f.marshal(users)
}

func (f *JSONFormatter) FormatProjects(projects []core.Project) (string, error) {
	if projects == nil {
		projects = []core.Project{}
	}
	return f.marshal(projects)
}

func (f *JSONFormatter) marshal(v any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
