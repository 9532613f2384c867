// Package dockerfile extracts build metadata (ports, volumes, env, entrypoint)
// from a Dockerfile with a line-oriented recognizer.
package dockerfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"unicode"
)

// Port is one EXPOSE entry. Protocol is "tcp", "udp" or empty when unspecified.
type Port struct {
	Number   string `json:"port"`
	Protocol string `json:"protocol"`
}

// Metadata is what the parser recognises in a Dockerfile.
type Metadata struct {
	From       string
	Maintainer string
	Run        []string
	Cmd        string
	Entrypoint string
	Ports      []Port
	Env        map[string]string
	Add        map[string]string
	Copy       map[string]string
	Volumes    []string
	User       string
	Workdir    string
	OnBuild    []string
}

// PortMap returns EXPOSE entries keyed by port number.
func (m *Metadata) PortMap() map[string]string {
	out := make(map[string]string, len(m.Ports))
	for _, p := range m.Ports {
		out[p.Number] = p.Protocol
	}
	return out
}

// InnerPort is the first exposed port, or "" when nothing is exposed.
func (m *Metadata) InnerPort() string {
	if len(m.Ports) == 0 {
		return ""
	}
	return m.Ports[0].Number
}

// VolumeMountPath is the first declared volume, or "".
func (m *Metadata) VolumeMountPath() string {
	if len(m.Volumes) == 0 {
		return ""
	}
	return m.Volumes[0]
}

// ParseError is a fatal problem with the Dockerfile contents.
type ParseError struct {
	Line        int
	Instruction string
	Value       string
	Reason      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dockerfile line %d: %s %q: %s", e.Line, e.Instruction, e.Value, e.Reason)
}

// ParseFile opens path and parses it. See Parse.
func ParseFile(path string, env map[string]string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f, env)
}

type instruction struct {
	line    int
	keyword string
	value   string
}

// Parse reads a Dockerfile. env supplies variables for VOLUME expansion in addition to
// ENV instructions seen before the VOLUME. A VOLUME entry that is not absolute after
// expansion, or that references an undefined variable, is a *ParseError.
func Parse(r io.Reader, env map[string]string) (*Metadata, error) {
	instructions, err := scan(r)
	if err != nil {
		return nil, err
	}

	md := &Metadata{
		Env:  map[string]string{},
		Add:  map[string]string{},
		Copy: map[string]string{},
	}
	for _, in := range instructions {
		switch in.keyword {
		case "FROM":
			md.From = in.value
		case "MAINTAINER":
			md.Maintainer = in.value
		case "RUN":
			md.Run = append(md.Run, in.value)
		case "CMD":
			md.Cmd = in.value
		case "ENTRYPOINT":
			md.Entrypoint = in.value
		case "EXPOSE":
			md.Ports = append(md.Ports, parseExpose(in.value)...)
		case "ENV":
			for k, v := range parseEnv(in.value) {
				md.Env[k] = v
			}
		case "ADD":
			addPair(md.Add, in.value)
		case "COPY":
			addPair(md.Copy, in.value)
		case "VOLUME":
			vols, err := resolveVolumes(in, md.Env, env)
			if err != nil {
				return nil, err
			}
			for _, v := range vols {
				if !slices.Contains(md.Volumes, v) {
					md.Volumes = append(md.Volumes, v)
				}
			}
		case "USER":
			md.User = in.value
		case "WORKDIR":
			md.Workdir = in.value
		case "ONBUILD":
			md.OnBuild = append(md.OnBuild, in.value)
		}
	}
	return md, nil
}

var keywords = map[string]bool{
	"FROM": true, "MAINTAINER": true, "RUN": true, "CMD": true, "EXPOSE": true,
	"ENV": true, "ADD": true, "COPY": true, "ENTRYPOINT": true, "VOLUME": true,
	"USER": true, "WORKDIR": true, "ONBUILD": true,
	"ARG": true, "LABEL": true, "HEALTHCHECK": true, "SHELL": true, "STOPSIGNAL": true,
}

// scan joins continuation lines and splits each instruction into keyword and value.
func scan(r io.Reader) ([]instruction, error) {
	var (
		out     []instruction
		pending strings.Builder
		start   int
	)
	flush := func() {
		text := strings.TrimSpace(pending.String())
		pending.Reset()
		if text == "" {
			return
		}
		kw, rest := text, ""
		if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
			kw, rest = text[:i], text[i:]
		}
		kw = strings.ToUpper(kw)
		if !keywords[kw] {
			return
		}
		out = append(out, instruction{line: start, keyword: kw, value: strings.TrimSpace(rest)})
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || trimmed == "" {
			continue
		}
		if pending.Len() == 0 {
			start = n
		}
		if cont, ok := strings.CutSuffix(trimmed, "\\"); ok {
			pending.WriteString(cont)
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(trimmed)
		flush()
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dockerfile: %w", err)
	}
	return out, nil
}

func parseExpose(value string) []Port {
	var ports []Port
	for _, field := range jsonOrFields(value) {
		field = strings.Trim(field, `"`)
		if field == "" {
			continue
		}
		num, proto, _ := strings.Cut(field, "/")
		proto = strings.ToLower(proto)
		if proto != "tcp" && proto != "udp" {
			proto = ""
		}
		ports = append(ports, Port{Number: num, Protocol: proto})
	}
	return ports
}

// parseEnv handles both "ENV k=v k2=v2" and "ENV k v".
func parseEnv(value string) map[string]string {
	out := map[string]string{}
	key, rest := value, ""
	if i := strings.IndexFunc(value, unicode.IsSpace); i >= 0 {
		key, rest = value[:i], value[i:]
	}
	if !strings.Contains(key, "=") {
		out[key] = strings.Trim(strings.TrimSpace(rest), `"`)
		return out
	}
	for _, field := range strings.Fields(value) {
		k, v, ok := strings.Cut(field, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = strings.Trim(v, `"`)
	}
	return out
}

func addPair(dst map[string]string, value string) {
	fields := strings.Fields(value)
	if len(fields) == 2 {
		dst[fields[0]] = fields[1]
	}
}

func resolveVolumes(in instruction, dockerEnv, buildEnv map[string]string) ([]string, error) {
	lookup := func(name string) (string, bool) {
		if v, ok := dockerEnv[name]; ok {
			return v, true
		}
		v, ok := buildEnv[name]
		return v, ok
	}

	var out []string
	for _, raw := range jsonOrFields(in.value) {
		raw = strings.Trim(strings.TrimSpace(raw), `"`)
		if raw == "" {
			continue
		}
		var missing string
		expanded := os.Expand(raw, func(name string) string {
			v, ok := lookup(name)
			if !ok && missing == "" {
				missing = name
			}
			return v
		})
		if missing != "" {
			return nil, &ParseError{Line: in.line, Instruction: in.keyword, Value: raw,
				Reason: fmt.Sprintf("undefined variable %q", missing)}
		}
		if !strings.HasPrefix(expanded, "/") {
			return nil, &ParseError{Line: in.line, Instruction: in.keyword, Value: raw,
				Reason: "volume must be an absolute path"}
		}
		out = append(out, expanded)
	}
	return out, nil
}

// jsonOrFields splits a JSON array value or a whitespace separated value.
func jsonOrFields(value string) []string {
	if strings.HasPrefix(value, "[") {
		var arr []string
		if err := json.Unmarshal([]byte(value), &arr); err == nil {
			return arr
		}
		inner := strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
		return strings.FieldsFunc(inner, func(r rune) bool { return r == ',' || r == ' ' })
	}
	return strings.Fields(value)
}
