package tokenizer

import (
	"errors"

	"github.com/arvinmi/sif/internal/utils"
)

// CountResult captures the outcome of counting a byte slice. Counted is
// false when the content was rejected as binary rather than tokenized.
type CountResult struct {
	Tokens  int
	Counted bool
}

// CountBytes estimates tokens for the provided data using counter. Binary or
// non-UTF8 content is not counted.
func CountBytes(counter Counter, data []byte) (CountResult, error) {
	if counter == nil {
		return CountResult{}, errors.New("nil tokenizer counter")
	}
	if len(data) == 0 {
		tokens, countError := counter.CountString("")
		if countError != nil {
			return CountResult{}, countError
		}
		return CountResult{Tokens: tokens, Counted: true}, nil
	}
	if utils.IsBinary(data) {
		return CountResult{Counted: false}, nil
	}
	tokens, countError := counter.CountString(string(data))
	if countError != nil {
		return CountResult{}, countError
	}
	return CountResult{Tokens: tokens, Counted: true}, nil
}
