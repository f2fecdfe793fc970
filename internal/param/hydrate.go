package param

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	boolText = regexp.MustCompile(`^(true|false)$`)
	intText  = regexp.MustCompile(`^-?\d+$`)
)

// Hydrate clones schema into fresh nodes and assigns every leaf whose full key
// appears in flat. Keys not in the schema are ignored; leaves without a key
// in flat keep the schema default.
func Hydrate(schema *Node, flat map[string]string) (n *Node, err error) {
	if schema == nil {
		return nil, ErrNilSchema
	}
	defer func() {
		if r := recover(); r != nil {
			n, err = nil, fmt.Errorf("param: hydrate %s: %v", schema.Key, r)
		}
	}()
	return hydrate(schema, "", flat)
}

func hydrate(src *Node, prefix string, flat map[string]string) (*Node, error) {
	full := joinKey(prefix, src.Key)
	switch src.Kind {
	case KindString, KindInt, KindBool, KindSelection:
		cp := &Node{Label: src.Label, Key: src.Key, Kind: src.Kind,
			Options: append([]Option(nil), src.Options...),
			str:     src.str, num: src.num, numOK: src.numOK, flag: src.flag}
		if raw, ok := flat[full]; ok {
			cp.Set(raw)
		}
		return cp, nil
	case KindGroup, KindDataset, KindLocation:
		cp := &Node{Label: src.Label, Key: src.Key, Kind: src.Kind}
		for _, c := range src.Children {
			if c == nil {
				return nil, fmt.Errorf("param: nil child under %q", full)
			}
			hc, err := hydrate(c, full, flat)
			if err != nil {
				return nil, err
			}
			cp.Children = append(cp.Children, hc)
		}
		return cp, nil
	default:
		return nil, fmt.Errorf("param: %q has unknown kind %s", full, src.Kind)
	}
}

// CloneWithValues hydrates schema from flat. If that fails it falls back to
// Reconstruct so a damaged record still loads; loose reports the fallback.
func CloneWithValues(schema *Node, flat map[string]string) (n *Node, loose bool) {
	n, err := Hydrate(schema, flat)
	if err == nil {
		return n, false
	}
	rootKey := ""
	if schema != nil {
		rootKey = schema.Key
	}
	return Reconstruct(rootKey, flat), true
}

// Reconstruct builds a flat tree from raw values, inferring each leaf's kind
// from its text. rootKey, or the common first key segment if rootKey is
// empty, becomes the group key so full keys render unchanged.
func Reconstruct(rootKey string, flat map[string]string) *Node {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if rootKey == "" {
		rootKey = commonRoot(keys)
	}
	root := Group(rootKey, rootKey)
	for _, k := range keys {
		sub := k
		if rootKey != "" {
			rest, ok := strings.CutPrefix(k, rootKey+"_")
			if !ok {
				continue
			}
			sub = rest
		}
		root.Add(infer(sub, flat[k]))
	}
	return root
}

func infer(key, raw string) *Node {
	switch {
	case boolText.MatchString(raw):
		return Bool(key, key, raw == "true")
	case intText.MatchString(raw):
		n := Int(key, key, 0)
		n.Set(raw)
		return n
	default:
		return String(key, key, raw)
	}
}

func commonRoot(keys []string) string {
	root := ""
	for i, k := range keys {
		seg, _, ok := strings.Cut(k, "_")
		if !ok {
			return ""
		}
		if i == 0 {
			root = seg
		} else if seg != root {
			return ""
		}
	}
	return root
}

// ParseEnv reads KEY=VALUE lines. Blank lines and '#' comments are skipped.
// Keys are trimmed; values keep everything after the first '=' verbatim,
// apart from a CRLF line ending.
func ParseEnv(text string) map[string]string {
	return ParseEnvLines(strings.Split(text, "\n"))
}

// ParseEnvLines is ParseEnv for already split lines. Each element is one
// line.
func ParseEnvLines(lines []string) map[string]string {
	m := map[string]string{}
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		m[strings.TrimSpace(k)] = v
	}
	return m
}
