// Package tsv reads prompt lists stored one per line as "question<TAB>answer".
package tsv

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/cory-johannsen/splash/internal/game/prompt"
)

// Parse reads "question<TAB>answer" lines from r. Blank lines and lines
// starting with '#' are skipped. Surrounding whitespace is trimmed from both
// fields.
//
// Postcondition: returns every prompt in file order, or an error naming the
// first bad line.
func Parse(r io.Reader) ([]prompt.Prompt, error) {
	var out []prompt.Prompt
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(text, "#") {
			continue
		}
		question, answer, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("line %d: missing tab separator", line)
		}
		p := prompt.Prompt{
			Question: strings.TrimSpace(question),
			Answer:   strings.TrimSpace(answer),
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading prompts: %w", err)
	}
	return out, nil
}
