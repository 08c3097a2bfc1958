package record

import (
	"encoding/binary"
	"fmt"

	"github.com/jordanwade90/rawseek/internal/pagebuf"
)

// PageReader reads raw pages, such as overflow pages.
type PageReader interface {
	ReadPage(n pagebuf.PageNumber) ([]byte, error)
	UsableSize() int
	PageCount() uint32
}

// Stitch reassembles a payload of payloadSize bytes from the part stored in a cell
// and the overflow chain starting at first.
// Each overflow page holds a 4-byte next-page pointer (0 ends the chain)
// followed by usableSize-4 content bytes.
// A payload longer than the whole file could hold, or a chain
// that visits a page twice, fails with pagebuf.ErrCorrupt.
func Stitch(r PageReader, local []byte, payloadSize int64, first pagebuf.PageNumber) ([]byte, error) {
	if payloadSize < 0 {
		return nil, fmt.Errorf("payload size %d: %w", payloadSize, pagebuf.ErrCorrupt)
	}
	if int64(len(local)) >= payloadSize {
		return local[:payloadSize], nil
	}

	usable := r.UsableSize()
	if usable <= 4 {
		return nil, fmt.Errorf("usable size %d: %w", usable, pagebuf.ErrCorrupt)
	}
	pageCount := int64(r.PageCount())
	if payloadSize-int64(len(local)) > pageCount*int64(usable-4) {
		return nil, fmt.Errorf("payload of %d bytes exceeds a %d page file: %w", payloadSize, pageCount, pagebuf.ErrCorrupt)
	}

	payload := make([]byte, 0, payloadSize)
	payload = append(payload, local...)
	seen := map[pagebuf.PageNumber]bool{}
	for next := first; int64(len(payload)) < payloadSize; {
		if next == 0 {
			return nil, fmt.Errorf("overflow chain ends after %d of %d bytes: %w", len(payload), payloadSize, ErrTruncated)
		}
		if seen[next] {
			return nil, fmt.Errorf("overflow page %d appears twice in one chain: %w", next, pagebuf.ErrCorrupt)
		}
		seen[next] = true
		page, err := r.ReadPage(next)
		if err != nil {
			return nil, fmt.Errorf("overflow page %d: %w", next, err)
		}
		if len(page) < usable {
			return nil, fmt.Errorf("overflow page %d is %d bytes: %w", next, len(page), pagebuf.ErrCorrupt)
		}
		content := page[4:usable]
		if need := payloadSize - int64(len(payload)); int64(len(content)) > need {
			content = content[:need]
		}
		payload = append(payload, content...)
		next = pagebuf.PageNumber(binary.BigEndian.Uint32(page))
	}
	return payload, nil
}
