package store

import (
	"github.com/vitwit/tokensale/types"
)

// ContentBundle is the deliverable content of one package. The concrete shape
// is fixed per store by its content variant.
type ContentBundle interface {
	// Lines returns a copy of the asset lines in insertion order.
	Lines() []types.AssetAmount
	// Put inserts a line, replacing any line it collides with.
	Put(line types.AssetAmount)
	// Remove deletes the line for asset and reports whether it existed.
	Remove(asset types.Asset) bool
	Empty() bool
}

func newBundle(variant types.ContentVariant) ContentBundle {
	if variant == types.ContentMulti {
		return &multiContent{}
	}
	return &singleContent{}
}

// singleContent holds at most one line; Put overwrites it regardless of asset.
type singleContent struct {
	line *types.AssetAmount
}

func (c *singleContent) Lines() []types.AssetAmount {
	if c.line == nil {
		return nil
	}
	return []types.AssetAmount{c.line.Clone()}
}

func (c *singleContent) Put(line types.AssetAmount) {
	l := line.Clone()
	c.line = &l
}

func (c *singleContent) Remove(asset types.Asset) bool {
	if c.line == nil || c.line.Asset() != asset {
		return false
	}
	c.line = nil
	return true
}

func (c *singleContent) Empty() bool {
	return c.line == nil
}

// multiContent holds distinct lines keyed by token and nonce.
type multiContent struct {
	lines []types.AssetAmount
}

func (c *multiContent) Lines() []types.AssetAmount {
	return types.CloneAmounts(c.lines)
}

func (c *multiContent) Put(line types.AssetAmount) {
	for i := range c.lines {
		if c.lines[i].Asset() == line.Asset() {
			c.lines[i] = line.Clone()
			return
		}
	}
	c.lines = append(c.lines, line.Clone())
}

func (c *multiContent) Remove(asset types.Asset) bool {
	for i := range c.lines {
		if c.lines[i].Asset() == asset {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return true
		}
	}
	return false
}

func (c *multiContent) Empty() bool {
	return len(c.lines) == 0
}
