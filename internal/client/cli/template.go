package cli

import (
	"text/template"
	"time"

	"github.com/iudanet/offsync/internal/client/status"
)

// statusIcons используются только при выводе в терминал
var statusIcons = map[status.Status]string{
	status.StatusOnline:  "✓",
	status.StatusSyncing: "⟳",
	status.StatusOffline: "✗",
}

var templateFuncs = template.FuncMap{
	"unixNano": func(ns int64) string {
		return time.Unix(0, ns).Format(time.RFC3339)
	},
}

const statusTemplate = `Status:    {{ .Icon }}{{ .Snapshot.Status }}
Server:    {{ .Server }} ({{ .Snapshot.Connectivity }})
Pending:   {{ .Snapshot.Stats.Pending }}
In flight: {{ .Snapshot.Stats.InFlight }}
Failed:    {{ .Snapshot.Stats.Failed }}
Last sync: {{ .LastSync }}
{{- if .Snapshot.Anomaly }}
Storage:   {{ .Snapshot.Anomaly.Err }}
{{- end }}
{{- if gt .Snapshot.Stats.Failed 0 }}

Run 'offsync failed' to review failed mutations.
{{- end }}
`

const failedListTemplate = `
{{- if eq (len .) 0 -}}
No failed mutations.
{{ else -}}
Found {{ len . }} failed mutation(s):
{{ range . }}
- {{ .ID }}
   Action:   {{ .Action }} {{ .Target }}
   Attempts: {{ .Attempts }}
   Updated:  {{ unixNano .UpdatedAt }}
   {{- if .LastError }}
   Error:    {{ .LastError }}
   {{- end }}
{{ end }}
Use 'offsync retry <id>' to queue a mutation again or 'offsync discard <id>' to drop it.
{{ end -}}
`

const syncReportTemplate = `Applied:     {{ .Applied }}
Failed:      {{ .Failed }}
Rescheduled: {{ .Rescheduled }}
Remaining:   {{ .Remaining }}
{{- if .NextRetry }}
Next retry in {{ .NextRetry }}
{{- end }}
`

var (
	statusTmpl     = template.Must(template.New("status").Parse(statusTemplate))
	failedListTmpl = template.Must(template.New("failed").Funcs(templateFuncs).Parse(failedListTemplate))
	syncReportTmpl = template.Must(template.New("sync").Parse(syncReportTemplate))
)
