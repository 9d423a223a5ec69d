package types

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mitchellh/hashstructure"
)

type Identifier interface {
	ID() string
}

type (
	// Set keeps insertion-independent unique values; identity comes from ID() when
	// the element implements Identifier, else from a structural hash
	Set[T comparable] struct {
		hash    map[string]nothing
		storage map[string]T
	}

	nothing struct{}
)

func NewSet[T comparable](initial ...T) *Set[T] {
	s := &Set[T]{
		hash:    make(map[string]nothing),
		storage: make(map[string]T),
	}

	s.Insert(initial...)
	return s
}

func (st *Set[T]) key(elem T) string {
	if identifiable, yes := any(elem).(Identifier); yes {
		return identifiable.ID()
	}

	uniqueHash, err := hashstructure.Hash(elem, nil)
	if err != nil {
		return fmt.Sprint(elem)
	}

	return fmt.Sprintf("%d", uniqueHash)
}

func (st *Set[T]) Exists(element T) bool {
	_, exists := st.hash[st.key(element)]
	return exists
}

func (st *Set[T]) Insert(elements ...T) {
	for _, elem := range elements {
		key := st.key(elem)
		if _, exists := st.hash[key]; exists {
			continue
		}

		st.hash[key] = nothing{}
		st.storage[key] = elem
	}
}

func (st *Set[T]) Remove(element T) {
	key := st.key(element)

	delete(st.hash, key)
	delete(st.storage, key)
}

func (st *Set[T]) Len() int {
	return len(st.hash)
}

func (st *Set[T]) Array() []T {
	arr := make([]T, 0, len(st.storage))
	for _, value := range st.storage {
		arr = append(arr, value)
	}

	return arr
}

func (st *Set[T]) String() string {
	values := []string{}
	for _, value := range st.storage {
		values = append(values, fmt.Sprint(value))
	}

	return fmt.Sprintf("[%s]", strings.Join(values, ", "))
}

func (st *Set[T]) UnmarshalJSON(data []byte) error {
	*st = *NewSet[T]()
	arr := []T{}
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}

	st.Insert(arr...)
	return nil
}

func (st *Set[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(st.Array())
}
