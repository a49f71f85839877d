package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FileDirectory serves user lookups from a JSON file holding an array of
// users. The file is loaded once and cached; directory data changes rarely
// enough that a restart is an acceptable refresh.
type FileDirectory struct {
	path string

	once    sync.Once
	loadErr error
	users   map[string]User
}

// NewFileDirectory creates a directory backed by the given JSON file.
func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: strings.Replace(path, "file://", "", 1)}
}

// GetUser returns the user with the given ID, or nil when unknown.
func (d *FileDirectory) GetUser(_ context.Context, id string) (*User, error) {
	d.once.Do(d.load)

	if d.loadErr != nil {
		return nil, d.loadErr
	}

	user, ok := d.users[id]
	if !ok {
		return nil, nil
	}

	return &user, nil
}

func (d *FileDirectory) load() {
	body, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			d.users = map[string]User{}

			return
		}

		d.loadErr = fmt.Errorf("failed to read user directory %s: %w", d.path, err)

		return
	}

	var records []User

	err = json.Unmarshal(body, &records)
	if err != nil {
		d.loadErr = fmt.Errorf("failed to parse user directory %s: %w", d.path, err)

		return
	}

	d.users = make(map[string]User, len(records))
	for _, record := range records {
		d.users[record.ID] = record
	}
}

// StaticDirectory serves lookups from an in-memory map.
type StaticDirectory struct {
	users map[string]User
}

// NewStaticDirectory creates a directory from the given users.
func NewStaticDirectory(users ...User) *StaticDirectory {
	indexed := make(map[string]User, len(users))
	for _, user := range users {
		indexed[user.ID] = user
	}

	return &StaticDirectory{users: indexed}
}

// GetUser returns the user with the given ID, or nil when unknown.
func (d *StaticDirectory) GetUser(_ context.Context, id string) (*User, error) {
	user, ok := d.users[id]
	if !ok {
		return nil, nil
	}

	return &user, nil
}
