// Package heap implements unordered table files: fixed-slot pages of tuples
// persisted through a PageStore.
package heap

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/sushant-115/gojostore/core/tuple"
	flushmanager "github.com/sushant-115/gojostore/core/write_engine/flush_manager"
	pagemanager "github.com/sushant-115/gojostore/core/write_engine/page_manager"
)

const DefaultSlotsPerPage = 64

// HeapPage holds up to a fixed number of tuples. Free slots are nil.
type HeapPage struct {
	pagemanager.DirtyState
	pid   pagemanager.PageID
	td    *tuple.TupleDesc
	slots []*tuple.Tuple
}

func NewHeapPage(pid pagemanager.PageID, td *tuple.TupleDesc, numSlots int) *HeapPage {
	return &HeapPage{pid: pid, td: td, slots: make([]*tuple.Tuple, numSlots)}
}

func (p *HeapPage) ID() pagemanager.PageID { return p.pid }

func (p *HeapPage) NumSlots() int { return len(p.slots) }

func (p *HeapPage) FreeSlots() int {
	n := 0
	for _, s := range p.slots {
		if s == nil {
			n++
		}
	}
	return n
}

// InsertTuple stores t in the first free slot and sets t.RecordID.
func (p *HeapPage) InsertTuple(t *tuple.Tuple) error {
	if err := t.Conforms(p.td); err != nil {
		return err
	}
	for i, s := range p.slots {
		if s != nil {
			continue
		}
		rid := &tuple.RecordID{PageID: p.pid, Slot: i}
		p.slots[i] = &tuple.Tuple{Fields: t.Fields, RecordID: rid}
		t.RecordID = rid
		return nil
	}
	return fmt.Errorf("%w: page %s", flushmanager.ErrPageFull, p.pid)
}

// DeleteTuple frees the slot named by t.RecordID.
func (p *HeapPage) DeleteTuple(t *tuple.Tuple) error {
	rid := t.RecordID
	if rid == nil || rid.PageID != p.pid || rid.Slot < 0 || rid.Slot >= len(p.slots) || p.slots[rid.Slot] == nil {
		return fmt.Errorf("%w: page %s", flushmanager.ErrTupleNotFound, p.pid)
	}
	p.slots[rid.Slot] = nil
	t.RecordID = nil
	return nil
}

// Tuples returns the stored tuples in slot order.
func (p *HeapPage) Tuples() []*tuple.Tuple {
	out := make([]*tuple.Tuple, 0, len(p.slots))
	for _, s := range p.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// --- Page encoding ---

type pageRecord struct {
	NumSlots int          `codec:"n"`
	Slots    []slotRecord `codec:"s"`
}

type slotRecord struct {
	Slot   int           `codec:"i"`
	Fields []fieldRecord `codec:"f"`
}

type fieldRecord struct {
	Type uint8  `codec:"t"`
	Int  int64  `codec:"v,omitempty"`
	Str  string `codec:"s,omitempty"`
}

var msgpackHandle = &codec.MsgpackHandle{}

// Encode serializes the occupied slots. The dirty marker is not persisted.
func (p *HeapPage) Encode() ([]byte, error) {
	rec := pageRecord{NumSlots: len(p.slots)}
	for i, s := range p.slots {
		if s == nil {
			continue
		}
		sr := slotRecord{Slot: i, Fields: make([]fieldRecord, len(s.Fields))}
		for j, f := range s.Fields {
			switch v := f.(type) {
			case *tuple.IntField:
				sr.Fields[j] = fieldRecord{Type: uint8(tuple.IntType), Int: v.Value}
			case *tuple.StringField:
				sr.Fields[j] = fieldRecord{Type: uint8(tuple.StringType), Str: v.Value}
			default:
				return nil, fmt.Errorf("encode page %s: unsupported field %T", p.pid, f)
			}
		}
		rec.Slots = append(rec.Slots, sr)
	}

	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, msgpackHandle).Encode(&rec); err != nil {
		return nil, fmt.Errorf("encode page %s: %w", p.pid, err)
	}
	return buf.Bytes(), nil
}

// DecodeHeapPage rebuilds a clean page from bytes produced by Encode.
func DecodeHeapPage(pid pagemanager.PageID, td *tuple.TupleDesc, data []byte) (*HeapPage, error) {
	var rec pageRecord
	if err := codec.NewDecoderBytes(data, msgpackHandle).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decode page %s: %v", flushmanager.ErrIO, pid, err)
	}

	p := NewHeapPage(pid, td, rec.NumSlots)
	for _, sr := range rec.Slots {
		if sr.Slot < 0 || sr.Slot >= rec.NumSlots {
			return nil, fmt.Errorf("%w: page %s has slot %d of %d", flushmanager.ErrIO, pid, sr.Slot, rec.NumSlots)
		}
		fields := make([]tuple.Field, len(sr.Fields))
		for j, fr := range sr.Fields {
			switch tuple.Type(fr.Type) {
			case tuple.IntType:
				fields[j] = tuple.NewIntField(fr.Int)
			case tuple.StringType:
				fields[j] = tuple.NewStringField(fr.Str)
			default:
				return nil, fmt.Errorf("%w: page %s has field type %d", flushmanager.ErrIO, pid, fr.Type)
			}
		}
		p.slots[sr.Slot] = &tuple.Tuple{Fields: fields, RecordID: &tuple.RecordID{PageID: pid, Slot: sr.Slot}}
	}
	return p, nil
}
