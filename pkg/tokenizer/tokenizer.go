package tokenizer

// Estimate approximates the token cost of a prompt without calling a real
// tokenizer: ASCII characters count as a quarter token each, everything else
// (CJK and other wide scripts tokenize denser) as half a token.
func Estimate(text string) int {
	var ascii, other int
	for _, r := range text {
		if r < 128 {
			ascii++
		} else {
			other++
		}
	}
	est := int(float64(ascii)*0.25 + float64(other)*0.5)
	if est == 0 && len(text) > 0 {
		est = 1
	}
	return est
}
