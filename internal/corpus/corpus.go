package corpus

import (
	"bufio"
	"bytes"
	"embed"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/n0needt0/synthlog/internal/domain"
	"github.com/pkg/errors"
)

//go:embed samples/*.log
var samples embed.FS

// Corpus is an immutable set of template lines for one format
type Corpus struct {
	format string
	lines  []string
	rnd    *rand.Rand
}

// Load returns the embedded corpus for format
func Load(format string, rnd *rand.Rand) (*Corpus, error) {
	data, err := samples.ReadFile("samples/" + format + ".log")
	if err != nil {
		return nil, domain.CorpusUnavailable{Format: format, Err: err}
	}
	return parse(format, data, rnd)
}

// LoadDir reads <dir>/<format>.log
func LoadDir(dir, format string, rnd *rand.Rand) (*Corpus, error) {
	path := filepath.Join(dir, format+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.CorpusUnavailable{Format: format, Err: errors.Wrapf(err, "failed to read %s", path)}
	}
	return parse(format, data, rnd)
}

// New builds a corpus from lines already in memory
func New(format string, lines []string, rnd *rand.Rand) (*Corpus, error) {
	var kept []string
	for _, l := range lines {
		l = strings.TrimRight(l, "\r\n")
		if strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		return nil, domain.CorpusUnavailable{Format: format, Err: errors.New("no template lines")}
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	return &Corpus{format: format, lines: kept, rnd: rnd}, nil
}

// Formats lists the formats with an embedded corpus
func Formats() []string {
	entries, err := samples.ReadDir("samples")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".log"))
	}
	return out
}

func parse(format string, data []byte, rnd *rand.Rand) (*Corpus, error) {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, domain.CorpusUnavailable{Format: format, Err: err}
	}
	return New(format, lines, rnd)
}

// Format returns the format the corpus belongs to
func (c *Corpus) Format() string {
	return c.format
}

// Len returns the number of templates
func (c *Corpus) Len() int {
	return len(c.lines)
}

// Lines returns a copy of the templates
func (c *Corpus) Lines() []string {
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Draw samples n templates without replacement. Draws are independent
// across calls. Asking for more than Len templates panics.
func (c *Corpus) Draw(n int) []string {
	if n > len(c.lines) {
		panic("corpus: draw larger than corpus")
	}
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []string{c.lines[c.rnd.Intn(len(c.lines))]}
	}
	idx := c.rnd.Perm(len(c.lines))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = c.lines[j]
	}
	return out
}
