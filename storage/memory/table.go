package memory

import (
	"github.com/tidwall/match"

	"github.com/giantswarm/webkit/storage"
)

// table holds plain keys and hashes. It does no locking of its own.
type table struct {
	values map[string]string
	hashes map[string]map[string]string
}

func newTable() *table {
	return &table{
		values: make(map[string]string),
		hashes: make(map[string]map[string]string),
	}
}

func (t *table) exists(key string) bool {
	if _, ok := t.values[key]; ok {
		return true
	}
	_, ok := t.hashes[key]
	return ok
}

func (t *table) hexists(hash, field string) bool {
	_, ok := t.hashes[hash][field]
	return ok
}

func (t *table) read(key string) (string, error) {
	value, ok := t.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

func (t *table) hread(hash, field string) (string, error) {
	value, ok := t.hashes[hash][field]
	if !ok {
		return "", storage.ErrNotFound
	}
	return value, nil
}

func (t *table) write(key, value string) {
	t.values[key] = value
}

func (t *table) hwrite(hash, field, value string) {
	fields, ok := t.hashes[hash]
	if !ok {
		fields = make(map[string]string)
		t.hashes[hash] = fields
	}
	fields[field] = value
}

func (t *table) destroy(key string) {
	delete(t.values, key)
	delete(t.hashes, key)
}

// hdestroy removes a field; a hash left without fields is removed too, like
// a remote server does.
func (t *table) hdestroy(hash, field string) {
	fields, ok := t.hashes[hash]
	if !ok {
		return
	}
	delete(fields, field)
	if len(fields) == 0 {
		delete(t.hashes, hash)
	}
}

// match returns every plain key and hash name matching the glob pattern.
func (t *table) match(pattern string) []string {
	var keys []string
	for key := range t.values {
		if match.Match(key, pattern) {
			keys = append(keys, key)
		}
	}
	for key := range t.hashes {
		if _, dup := t.values[key]; dup {
			continue
		}
		if match.Match(key, pattern) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (t *table) len() int {
	return len(t.values) + len(t.hashes)
}
