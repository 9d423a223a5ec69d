package types

import (
	"fmt"
	"strings"
)

// StreamDescriptor identifies a logical stream of records (a table or collection).
// It is comparable and used as a map key by the flush registry and the writer pool.
type StreamDescriptor struct {
	Namespace string `json:"namespace,omitempty"`
	Name      string `json:"name"`
}

func NewStreamDescriptor(namespace, name string) StreamDescriptor {
	return StreamDescriptor{Namespace: namespace, Name: name}
}

// ParseStreamDescriptor parses "namespace.name" or "name"
func ParseStreamDescriptor(id string) (StreamDescriptor, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return StreamDescriptor{}, fmt.Errorf("empty stream identifier")
	}

	namespace, name, found := strings.Cut(id, ".")
	if !found {
		return StreamDescriptor{Name: id}, nil
	}
	if name == "" {
		return StreamDescriptor{}, fmt.Errorf("stream identifier[%s] has an empty name", id)
	}

	return StreamDescriptor{Namespace: namespace, Name: name}, nil
}

func (s StreamDescriptor) ID() string {
	if s.Namespace != "" {
		return fmt.Sprintf("%s.%s", s.Namespace, s.Name)
	}

	return s.Name
}

func (s StreamDescriptor) String() string {
	return s.ID()
}

// StreamFilter selects streams by identifier; an empty filter selects everything
type StreamFilter struct {
	selected *Set[StreamDescriptor]
}

func NewStreamFilter(ids ...string) (*StreamFilter, error) {
	selected := NewSet[StreamDescriptor]()
	for _, id := range ids {
		stream, err := ParseStreamDescriptor(id)
		if err != nil {
			return nil, err
		}
		selected.Insert(stream)
	}

	return &StreamFilter{selected: selected}, nil
}

func (f *StreamFilter) Selected(stream StreamDescriptor) bool {
	if f == nil || f.selected.Len() == 0 {
		return true
	}

	return f.selected.Exists(stream)
}
