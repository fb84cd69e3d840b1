// Package taxonomy loads the author and topic reference sets and maps
// free-text authors and categories onto them.
package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Coalition is a named bloc of states.
type Coalition struct {
	Name    string   `json:"name" yaml:"name"`
	Members []string `json:"members" yaml:"members"`
}

// Authors is the author taxonomy file.
type Authors struct {
	Members             []string    `json:"members" yaml:"members"`
	CountryAssociations []Coalition `json:"country_associations" yaml:"country_associations"`
}

// Topic is one category of the topic taxonomy.
type Topic struct {
	Category      string   `json:"category" yaml:"category"`
	Subcategories []string `json:"subcategories" yaml:"subcategories"`
	Article       string   `json:"article" yaml:"article"`
}

// StringList decodes from either a single string or a list of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	*l = many
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = StringList{node.Value}
		return nil
	}
	var many []string
	if err := node.Decode(&many); err != nil {
		return fmt.Errorf("decode string list: %w", err)
	}
	*l = many
	return nil
}

// AuthorOverride maps an unmatched author string to canonical authors for
// the documents listed in Hrefs. Only hrefs marked true apply.
type AuthorOverride struct {
	Hrefs   map[string]bool `json:"hrefs" yaml:"hrefs"`
	Mapping StringList      `json:"mapping" yaml:"mapping"`
}

// Files names the taxonomy inputs. Only Authors and Topics are required.
type Files struct {
	Authors         string
	Topics          string
	KeyElements     string
	AuthorOverrides string
	TopicOverrides  string
}

// Context is the read-only taxonomy state for one pipeline run.
type Context struct {
	Authors     Authors
	Topics      []Topic
	KeyElements map[string][]string

	authorIndex map[string]string
	coalitions  map[string][]string
	topicIndex  map[string]string
	categories  map[string]Topic
	hrefAuthors map[string][]string
	topicRemap  map[string][]string
}

// Load reads every configured taxonomy file and builds the lookup indexes.
func Load(files Files) (*Context, error) {
	if files.Authors == "" || files.Topics == "" {
		return nil, errors.New("load taxonomy: authors and topics files are required")
	}
	var (
		authors     Authors
		topics      []Topic
		keyElements map[string][]string
		overrides   map[string]AuthorOverride
		topicRemap  map[string]StringList
	)
	if err := decodeFile(files.Authors, &authors); err != nil {
		return nil, err
	}
	if err := decodeFile(files.Topics, &topics); err != nil {
		return nil, err
	}
	if files.KeyElements != "" {
		if err := decodeFile(files.KeyElements, &keyElements); err != nil {
			return nil, err
		}
	}
	if files.AuthorOverrides != "" {
		if err := decodeFile(files.AuthorOverrides, &overrides); err != nil {
			return nil, err
		}
	}
	if files.TopicOverrides != "" {
		if err := decodeFile(files.TopicOverrides, &topicRemap); err != nil {
			return nil, err
		}
	}
	return New(authors, topics, keyElements, overrides, topicRemap), nil
}

// New builds a Context from decoded taxonomy values.
func New(authors Authors, topics []Topic, keyElements map[string][]string,
	overrides map[string]AuthorOverride, topicRemap map[string]StringList,
) *Context {
	c := &Context{
		Authors:     authors,
		Topics:      topics,
		KeyElements: keyElements,
		authorIndex: make(map[string]string),
		coalitions:  make(map[string][]string),
		topicIndex:  make(map[string]string),
		categories:  make(map[string]Topic),
		hrefAuthors: make(map[string][]string),
		topicRemap:  make(map[string][]string),
	}
	if c.KeyElements == nil {
		c.KeyElements = map[string][]string{}
	}
	for _, m := range authors.Members {
		c.authorIndex[Key(m)] = m
	}
	for _, g := range authors.CountryAssociations {
		c.authorIndex[Key(g.Name)] = g.Name
		c.coalitions[g.Name] = g.Members
	}
	for _, t := range topics {
		c.categories[t.Category] = t
		c.topicIndex[Key(t.Category)] = t.Category
	}
	for _, t := range topics {
		for _, sub := range t.Subcategories {
			if _, taken := c.topicIndex[Key(sub)]; !taken {
				c.topicIndex[Key(sub)] = t.Category
			}
		}
	}
	for _, name := range slices.Sorted(maps.Keys(overrides)) {
		o := overrides[name]
		for href, ok := range o.Hrefs {
			if !ok {
				continue
			}
			c.hrefAuthors[href] = appendUnique(c.hrefAuthors[href], o.Mapping...)
		}
	}
	for free, mapped := range topicRemap {
		c.topicRemap[Key(free)] = mapped
	}
	return c
}

// Key normalizes a name for lookup: NFC, lowercase, without spaces or
// parentheses.
func Key(s string) string {
	s = strings.ToLower(norm.NFC.String(s))
	return strings.NewReplacer(" ", "", "\u00a0", "", "(", "", ")", "").Replace(s)
}

// HasAuthor reports whether name is a canonical author or coalition.
func (c *Context) HasAuthor(name string) bool {
	canonical, ok := c.authorIndex[Key(name)]
	return ok && canonical == name
}

// HasTopic reports whether id is a canonical category.
func (c *Context) HasTopic(id string) bool {
	_, ok := c.categories[id]
	return ok
}

// IsCoalition reports whether name is a canonical coalition name.
func (c *Context) IsCoalition(name string) bool {
	_, ok := c.coalitions[name]
	return ok
}

func decodeFile(path string, into any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, into)
	default:
		err = json.Unmarshal(data, into)
	}
	if err != nil {
		return fmt.Errorf("decode taxonomy %s: %w", path, err)
	}
	return nil
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" {
			continue
		}
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
