package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// storageLocationPattern is the literal "Fridge X · Bin Y · Place Z" form.
var storageLocationPattern = regexp.MustCompile(`^Fridge ([A-Za-z0-9]+) · Bin ([A-Za-z0-9]+) · Place ([A-Za-z0-9]+)$`)

// StorageLocation is a parsed fridge/bin/place triple.
type StorageLocation struct {
	Fridge string
	Bin    string
	Place  string
}

func (l StorageLocation) String() string {
	return fmt.Sprintf("Fridge %s · Bin %s · Place %s", l.Fridge, l.Bin, l.Place)
}

// ParseStorageLocation validates and splits a storage location string.
func ParseStorageLocation(raw string) (StorageLocation, error) {
	m := storageLocationPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return StorageLocation{}, ValidationError{
			Field:  "storage_location",
			Reason: fmt.Sprintf("%q does not match \"Fridge {id} · Bin {id} · Place {id}\"", raw),
		}
	}
	return StorageLocation{Fridge: m[1], Bin: m[2], Place: m[3]}, nil
}
