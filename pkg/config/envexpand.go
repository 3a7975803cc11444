package config

import (
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables referenced as {{.VAR_NAME}} in
// policies file content. Template syntax is used instead of $VAR because
// policy values regularly contain literal dollar signs (blocklist patterns,
// tone phrases), which must pass through untouched.
//
// Missing variables expand to the empty string. Content that fails to parse
// or execute as a template is returned unchanged so plain YAML never breaks.
func ExpandEnv(data string) string {
	tmpl, err := template.New("policies").Option("missingkey=zero").Parse(data)
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		// Split on the first = only; values may contain more.
		if idx := strings.IndexByte(env, '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.String()
}
