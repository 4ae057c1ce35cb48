// Package color assigns each alias a deterministic display color, per the
// "Color allocation" design note in §9: a hash-based probe over a fixed
// palette, preferring currently-unused entries, falling back to a
// procedurally generated HSL color on palette exhaustion. Determinism is a
// property of the seed ("alias|ip"), never of wall-clock time.
package color

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Palette is the fixed 32-entry set of display colors, expressed as CSS hex
// triples. Entries are hand-picked for contrast against both light and dark
// chat backgrounds.
var Palette = [32]string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231", "#911eb4",
	"#46f0f0", "#f032e6", "#bcf60c", "#fabebe", "#008080", "#e6beff",
	"#9a6324", "#fffac8", "#800000", "#aaffc3", "#808000", "#ffd8b1",
	"#000075", "#808080", "#ff4d4d", "#4dff4d", "#4d4dff", "#ffff4d",
	"#ff4dff", "#4dffff", "#c04dff", "#ff8c4d", "#4dc0ff", "#c0ff4d",
	"#ff4da6", "#4dffa6",
}

// Allocator hands out palette entries to aliases, preferring unused slots,
// and remembers the assignment for the lifetime of the process (colors are
// re-derived, not persisted, so a restart reshuffles nothing observable —
// the seed is deterministic so the same alias+ip reliably probes the same
// starting slot).
type Allocator struct {
	inUse map[int]bool
}

// NewAllocator returns an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{inUse: make(map[int]bool)}
}

// Assign returns a color for alias connecting from ip. It probes the
// palette starting at a seeded index, advancing linearly until it finds an
// unused slot; if all 32 are in use it falls back to a procedurally
// generated HSL color so the probe never blocks.
func (a *Allocator) Assign(alias, ip string) string {
	seed := seedIndex(alias, ip)
	for i := 0; i < len(Palette); i++ {
		idx := (seed + i) % len(Palette)
		if !a.inUse[idx] {
			a.inUse[idx] = true
			return Palette[idx]
		}
	}
	return fallbackHSL(seed)
}

// Release frees the palette slot an alias was assigned, identified by
// re-deriving its seed — callers don't need to track which slot a released
// alias held.
func (a *Allocator) Release(alias, ip string) {
	seed := seedIndex(alias, ip)
	for i := 0; i < len(Palette); i++ {
		idx := (seed + i) % len(Palette)
		if a.inUse[idx] {
			delete(a.inUse, idx)
			return
		}
	}
}

func seedIndex(alias, ip string) int {
	sum := blake2b.Sum256([]byte(alias + "|" + ip))
	v := binary.BigEndian.Uint64(sum[:8])
	return int(v % uint64(len(Palette)))
}

func fallbackHSL(seed int) string {
	sum := blake2b.Sum256([]byte(fmt.Sprintf("overflow|%d", seed)))
	hue := int(sum[0]) * 360 / 255
	return fmt.Sprintf("hsl(%d, 65%%, 55%%)", hue)
}
