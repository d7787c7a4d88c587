package logic

import "time"

// UserStatus is one authenticated user as shown by the status command.
type UserStatus struct {
	ID   uint8
	Name string
}

// Status is a point-in-time view of the scene and the sessions.
type Status struct {
	Scene      string
	Entities   int
	Server     bool
	Port       uint16
	Protocol   string
	Users      []UserStatus
	Client     string
	Target     string
	ClientID   uint8
	SyncPeriod time.Duration
}

func (l *Logic) Status() Status {
	st := Status{
		Scene:      l.scene.Name(),
		Entities:   l.scene.Len(),
		Server:     l.server.IsRunning(),
		Client:     l.client.State().String(),
		ClientID:   l.client.ConnectionID(),
		SyncPeriod: l.sync.UpdatePeriod(),
	}
	if st.Server {
		st.Port = l.net.ServerPort()
		st.Protocol = l.net.ServerTransport()
		for _, u := range l.server.AuthenticatedUsers() {
			st.Users = append(st.Users, UserStatus{ID: u.ID, Name: u.Property("username")})
		}
	}
	if target, ok := l.net.Target(); ok {
		st.Target = target.String()
	}
	return st
}

const statusTemplate = `Scene {{ .Scene | quote }} holds {{ .Entities }} {{ if eq .Entities 1 }}entity{{ else }}entities{{ end }}.
{{ if .Server -}}
Server listening on port {{ .Port }} ({{ .Protocol | upper }}) with {{ len .Users }} {{ if eq (len .Users) 1 }}user{{ else }}users{{ end }}.
{{- range .Users }}
  [{{ .ID }}] {{ .Name | default "(unnamed)" }}
{{- end }}
{{ else -}}
Client {{ .Client }}{{ with .Target }}, target {{ . }}{{ end }}{{ if .ClientID }}, user {{ .ClientID }}{{ end }}.
{{ end -}}
Sync period {{ .SyncPeriod }}.`
