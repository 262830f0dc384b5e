/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package catalog holds the fixed set of characters a party can be built from.
//
// A Catalog is built once at startup and never modified afterwards, so it is
// safe to share between goroutines without locking.
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

// ErrNotFound is returned when a lookup matches no character.
var ErrNotFound = errors.New("character not found")

// Entity is a single character and its display metadata.
type Entity struct {
	Number          int    `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	ImageURL        string `json:"image_url" yaml:"image_url"`
	RecruitmentInfo string `json:"recruitment_info" yaml:"recruitment_info"`
}

// ID is the identifier party slots refer to.
func (e Entity) ID() string {
	return e.Name
}

type Catalog struct {
	entities []Entity
	byID     map[string]int
	byFold   map[string]int
}

// New builds a Catalog, rejecting unnamed or duplicate entries.
func New(entities []Entity) (*Catalog, error) {
	c := &Catalog{
		entities: make([]Entity, 0, len(entities)),
		byID:     make(map[string]int, len(entities)),
		byFold:   make(map[string]int, len(entities)),
	}

	for i, e := range entities {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("entry %d has no name", i)
		}
		if _, exists := c.byID[e.ID()]; exists {
			return nil, fmt.Errorf("duplicate character %q", e.Name)
		}

		c.byID[e.ID()] = len(c.entities)

		folded := strings.ToLower(e.Name)
		if _, exists := c.byFold[folded]; !exists {
			c.byFold[folded] = len(c.entities)
		}

		c.entities = append(c.entities, e)
	}

	return c, nil
}

func (c *Catalog) Len() int {
	return len(c.entities)
}

// All returns every entity in catalog order. The slice is a copy.
func (c *Catalog) All() []Entity {
	out := make([]Entity, len(c.entities))
	copy(out, c.entities)

	return out
}

func (c *Catalog) Contains(id string) bool {
	_, ok := c.byID[id]

	return ok
}

// Get looks up an entity by its exact identifier.
func (c *Catalog) Get(id string) (Entity, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Entity{}, false
	}

	return c.entities[i], true
}

// Find looks up an entity by name, ignoring case.
func (c *Catalog) Find(name string) (Entity, error) {
	i, ok := c.byFold[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Entity{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	return c.entities[i], nil
}

// Sample returns up to n distinct entities in random order.
func (c *Catalog) Sample(n int, rng *rand.Rand) []Entity {
	if n > len(c.entities) {
		n = len(c.entities)
	}
	if n <= 0 {
		return nil
	}

	out := c.All()
	for i := len(out) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out[:n]
}

// Fallback is the minimal catalog used when nothing could be loaded.
func Fallback() *Catalog {
	c, _ := New([]Entity{
		{
			Number:          1,
			Name:            "Tir McDohl",
			ImageURL:        imagePrefix + "tir.png",
			RecruitmentInfo: "Main character, automatically recruited at the start.",
		},
		{
			Number:          2,
			Name:            "Gremio",
			ImageURL:        imagePrefix + "gremio.png",
			RecruitmentInfo: "Tir's servant. Joins at the beginning of the game.",
		},
		{
			Number:          3,
			Name:            "Viktor",
			ImageURL:        imagePrefix + "viktor.png",
			RecruitmentInfo: "Found in Lenankamp, joins after meeting him in the inn.",
		},
	})

	return c
}
