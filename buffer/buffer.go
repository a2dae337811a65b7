package buffer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/neovim/go-client/nvim"

	"mergetab/logger"
	"mergetab/text"
	"mergetab/types"
)

var ErrNoClient = errors.New("nvim client not set")

// attachLua forwards on_lines callbacks for a buffer to the daemon channel
const attachLua = `
local buf, chan = ...
vim.api.nvim_buf_attach(buf, false, {
  on_lines = function(_, b, tick, first, last, last_new)
    local lines = vim.api.nvim_buf_get_lines(b, first, last_new, false)
    vim.rpcnotify(chan, "mergetab_lines", b, tick, first, last, lines)
  end,
})
return true`

// NvimBuffer adapts one Neovim buffer to the engine editor interface. Reads
// are served from a line cache kept current by on_lines notifications.
type NvimBuffer struct {
	client *nvim.Nvim
	id     nvim.Buffer

	mu       sync.Mutex
	lines    []string
	eol      string
	ownTicks map[int]struct{}
}

func NewNvimBuffer(client *nvim.Nvim, id nvim.Buffer) *NvimBuffer {
	return &NvimBuffer{
		client:   client,
		id:       id,
		lines:    []string{""},
		eol:      text.EOLLF,
		ownTicks: make(map[int]struct{}),
	}
}

func (b *NvimBuffer) ID() nvim.Buffer { return b.id }

// Sync reloads the cache and the buffer fileformat
func (b *NvimBuffer) Sync() error {
	if b.client == nil {
		return ErrNoClient
	}
	var raw [][]byte
	var fileformat string

	batch := b.client.NewBatch()
	batch.BufferLines(b.id, 0, -1, false, &raw)
	batch.ExecLua(`return vim.bo[...].fileformat`, &fileformat, int(b.id))
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("sync buffer %d: %w", b.id, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = bytesToLines(raw)
	if fileformat == "dos" {
		b.eol = text.EOLCRLF
	} else {
		b.eol = text.EOLLF
	}
	return nil
}

// Attach subscribes the buffer to on_lines notifications
func (b *NvimBuffer) Attach() error {
	if b.client == nil {
		return ErrNoClient
	}
	var ok bool
	if err := b.client.ExecLua(attachLua, &ok, int(b.id), b.client.ChannelID()); err != nil {
		return fmt.Errorf("attach buffer %d: %w", b.id, err)
	}
	return nil
}

func (b *NvimBuffer) GetText(r types.LineInterval) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	start, end := clampInterval(r, len(b.lines))
	if end <= start {
		return ""
	}
	return text.JoinLines(b.lines[start-1:end-1], b.eol)
}

func (b *NvimBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

func (b *NvimBuffer) EOL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eol
}

func (b *NvimBuffer) LineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// ApplyEdits writes all edits in one atomic batch and remembers the
// changedticks it produced so their on_lines echoes are ignored.
func (b *NvimBuffer) ApplyEdits(edits []types.Edit) error {
	if b.client == nil {
		return ErrNoClient
	}
	if len(edits) == 0 {
		return nil
	}

	// Held across the round trip: on_lines for our own ticks can be
	// delivered before Execute returns.
	b.mu.Lock()
	defer b.mu.Unlock()

	var before, after int
	batch := b.client.NewBatch()
	batch.BufferChangedTick(b.id, &before)
	next := b.lines
	for _, e := range sortedEdits(edits) {
		start, end := clampInterval(e.Range, len(next))
		replacement := text.LinesOf(e.Text, b.eol)
		batch.SetBufferLines(b.id, start-1, end-1, false, linesToBytes(replacement))
		next = spliceLines(next, e.Range, replacement)
	}
	batch.BufferChangedTick(b.id, &after)
	if err := batch.Execute(); err != nil {
		return fmt.Errorf("apply edits to buffer %d: %w", b.id, err)
	}

	b.lines = next
	for tick := before + 1; tick <= after; tick++ {
		b.ownTicks[tick] = struct{}{}
	}
	return nil
}

// OnLines handles a mergetab_lines notification. It reports false for
// changes the adapter made itself.
func (b *NvimBuffer) OnLines(tick, first, last int, lines []string) (types.ContentChangeEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, own := b.ownTicks[tick]; own {
		delete(b.ownTicks, tick)
		return types.ContentChangeEvent{}, false
	}

	b.lines = spliceLines(b.lines, types.LineInterval{Start: first + 1, End: last + 1}, lines)
	logger.Debug("buffer %d: user change tick=%d lines [%d,%d) -> %d", b.id, tick, first, last, len(lines))
	return types.ContentChangeEvent{
		Changes: []types.ContentChange{lineChange(first, last, lines, b.eol)},
		EOL:     b.eol,
	}, true
}

func bytesToLines(raw [][]byte) []string {
	if len(raw) == 0 {
		return []string{""}
	}
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = string(l)
	}
	return lines
}

func linesToBytes(lines []string) [][]byte {
	out := make([][]byte, len(lines))
	for i, l := range lines {
		out[i] = []byte(l)
	}
	return out
}
