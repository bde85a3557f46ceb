// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package frame

import "golang.org/x/xerrors"

// EventStat is reported for every complete, non-virtual event with a
// valid header, so the stats aggregator can accumulate per-(module,channel) counts.
// Size is in bytes (4 * event size in words).
type EventStat struct {
	Channel int
	Size    int
}

// ParseResult is the outcome of walking one module's drained words.
type ParseResult struct {
	// Consumed is the number of words that belong to complete events;
	// it excludes any trailing partial event.
	Consumed int
	// Partial holds the words of a trailing event whose header promised
	// more words than were present in this segment; they must be
	// prepended to the module's next drain.
	Partial []uint32
	// Stats lists every complete, non-virtual, well-formed event seen; a
	// trailing partial event is left out until it completes.
	Stats []EventStat
}

// ParseSegment walks words — a module's partial-event carryover
// concatenated with its freshly drained FIFO content — locating event
// boundaries via the header's size field. It reports every complete
// non-virtual event to the returned Stats, and detects two failure shapes:
//
//   - a corrupted header (bad slot, bad channel, zero size) anywhere in
//     the segment;
//   - a short last event at the very end of words, whose declared size
//     would require reading past len(words); this is not an error by
//     itself — the words of that event that are present are returned in
//     Partial — *unless*
//     parsing stops strictly before len(words) for a reason other than
//     a trailing partial event, which is corruption (a short event not
//     at the boundary).
func ParseSegment(words []uint32, slotExpected int) (ParseResult, error) {
	var (
		res    ParseResult
		cursor int
		lastSz int
	)

	for cursor < len(words) {
		hdr, err := ParseHeader(words[cursor], slotExpected)
		if err != nil {
			return res, xerrors.Errorf("frame: corrupted event header at word %d: %w", cursor, err)
		}

		lastSz = hdr.Size
		if !hdr.Virtual && cursor+hdr.Size <= len(words) {
			res.Stats = append(res.Stats, EventStat{Channel: hdr.Channel, Size: 4 * hdr.Size})
		}
		cursor += hdr.Size
	}

	switch {
	case cursor == len(words):
		res.Consumed = len(words)
	case cursor > len(words):
		missing := cursor - len(words)
		partialSize := lastSz - missing
		if partialSize < 0 {
			return res, xerrors.Errorf("frame: corrupted event header: declared size %d smaller than missing words %d", lastSz, missing)
		}
		start := len(words) - partialSize
		res.Partial = append([]uint32(nil), words[start:]...)
		res.Consumed = len(words) - partialSize
	default:
		// cursor < len(words): a short event landed before the segment
		// end rather than straddling it.
		return res, xerrors.Errorf("frame: parsing stopped at word %d, %d words into the segment", cursor, len(words))
	}

	return res, nil
}
