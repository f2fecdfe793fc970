// Package param implements the typed parameter tree that describes a task's
// configuration and its flat KEY=VALUE form.
package param

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var ErrNilSchema = errors.New("param: nil schema")

// Kind discriminates the node variants.
type Kind int

const (
	KindGroup Kind = iota
	KindString
	KindInt
	KindBool
	KindSelection
	// KindDataset is a composite of host, port, user, pool and dataset.
	KindDataset
	// KindLocation is a composite of host, port, user and path.
	KindLocation
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindSelection:
		return "selection"
	case KindDataset:
		return "dataset"
	case KindLocation:
		return "location"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// IsLeaf reports whether nodes of this kind carry a value.
func (k Kind) IsLeaf() bool {
	switch k {
	case KindString, KindInt, KindBool, KindSelection:
		return true
	}
	return false
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Node is one element of a parameter tree. Composite nodes have children,
// leaf nodes hold a value. A node's full key is the "_"-joined path of keys
// from the root.
type Node struct {
	Label    string
	Key      string
	Kind     Kind
	Children []*Node
	Options  []Option

	str   string
	num   int64
	numOK bool
	flag  bool
}

func Group(label, key string, children ...*Node) *Node {
	return &Node{Label: label, Key: key, Kind: KindGroup, Children: children}
}

func String(label, key, def string) *Node {
	return &Node{Label: label, Key: key, Kind: KindString, str: def}
}

func Int(label, key string, def int64) *Node {
	return &Node{Label: label, Key: key, Kind: KindInt, num: def, numOK: true}
}

func Bool(label, key string, def bool) *Node {
	return &Node{Label: label, Key: key, Kind: KindBool, flag: def}
}

func Selection(label, key, def string, opts ...Option) *Node {
	return &Node{Label: label, Key: key, Kind: KindSelection, str: def, Options: opts}
}

// Dataset builds a ZFS dataset location: host, port, user, pool, dataset.
func Dataset(label, key string, port int64) *Node {
	return &Node{Label: label, Key: key, Kind: KindDataset, Children: []*Node{
		String("Host", "host", ""),
		Int("Port", "port", port),
		String("User", "user", ""),
		Selection("Pool", "pool", ""),
		Selection("Dataset", "dataset", ""),
	}}
}

// Location builds a remote filesystem location: host, port, user, path.
func Location(label, key string, port int64) *Node {
	return &Node{Label: label, Key: key, Kind: KindLocation, Children: []*Node{
		String("Host", "host", ""),
		Int("Port", "port", port),
		String("User", "user", ""),
		String("Path", "path", ""),
	}}
}

// Value returns the textual form used in env files. Invalid ints render
// as "".
func (n *Node) Value() string {
	switch n.Kind {
	case KindString, KindSelection:
		return n.str
	case KindInt:
		if !n.numOK {
			return ""
		}
		return strconv.FormatInt(n.num, 10)
	case KindBool:
		return strconv.FormatBool(n.flag)
	default:
		return ""
	}
}

// Int returns the integer value; ok is false when the last assigned text
// did not parse.
func (n *Node) Int() (v int64, ok bool) { return n.num, n.numOK }

func (n *Node) Flag() bool { return n.flag }

// Set assigns raw text with the coercion rules of the node's kind: bools are
// true only for the literal "true", ints that fail to parse become invalid,
// strings and selections are stored verbatim.
func (n *Node) Set(raw string) {
	switch n.Kind {
	case KindString, KindSelection:
		n.str = raw
	case KindInt:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		n.num, n.numOK = v, err == nil
	case KindBool:
		n.flag = raw == "true"
	}
}

func (n *Node) SetInt(v int64) { n.num, n.numOK = v, true }
func (n *Node) SetBool(v bool) { n.flag = v }

// Child returns the direct child with key, or nil.
func (n *Node) Child(key string) *Node {
	for _, c := range n.Children {
		if c.Key == key {
			return c
		}
	}
	return nil
}

// Add appends children and returns n.
func (n *Node) Add(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	default:
		return prefix + "_" + key
	}
}

// Walk calls fn for every leaf with its full key, depth first.
func (n *Node) Walk(fn func(fullKey string, leaf *Node)) {
	n.walk("", fn)
}

func (n *Node) walk(prefix string, fn func(string, *Node)) {
	full := joinKey(prefix, n.Key)
	if n.Kind.IsLeaf() {
		fn(full, n)
		return
	}
	for _, c := range n.Children {
		c.walk(full, fn)
	}
}

// Find returns the leaf whose full key matches, or nil.
func (n *Node) Find(fullKey string) *Node {
	var found *Node
	n.Walk(func(k string, leaf *Node) {
		if found == nil && k == fullKey {
			found = leaf
		}
	})
	return found
}

// EnvKeyValues renders one "fullKey=value" line per leaf.
func (n *Node) EnvKeyValues() []string {
	var out []string
	n.Walk(func(k string, leaf *Node) {
		out = append(out, k+"="+leaf.Value())
	})
	return out
}

// Flatten returns the leaf values keyed by full key.
func (n *Node) Flatten() map[string]string {
	m := map[string]string{}
	n.Walk(func(k string, leaf *Node) { m[k] = leaf.Value() })
	return m
}

// Clone returns a deep copy sharing no nodes with n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	cp := *n
	cp.Options = append([]Option(nil), n.Options...)
	cp.Children = nil
	if len(n.Children) > 0 {
		cp.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = c.Clone()
		}
	}
	return &cp
}

// Validate checks selection values against their options, int values for
// parseability, and text values for line breaks, which would split the
// KEY=VALUE line they are written to.
func (n *Node) Validate() error {
	var result *multierror.Error
	n.Walk(func(k string, leaf *Node) {
		if (leaf.Kind == KindString || leaf.Kind == KindSelection) && strings.ContainsAny(leaf.str, "\r\n") {
			result = multierror.Append(result, fmt.Errorf("%s: value must be a single line", k))
			return
		}
		switch leaf.Kind {
		case KindInt:
			if !leaf.numOK {
				result = multierror.Append(result, fmt.Errorf("%s: not an integer", k))
			}
		case KindSelection:
			if leaf.str == "" || len(leaf.Options) == 0 {
				return
			}
			for _, o := range leaf.Options {
				if o.Value == leaf.str {
					return
				}
			}
			result = multierror.Append(result, fmt.Errorf("%s: %q is not one of the allowed options", k, leaf.str))
		}
	})
	return result.ErrorOrNil()
}
