package bounce

import (
	"strings"
	"testing"
)

// BenchmarkExtract_Multipart benchmarks extraction of a typical DSN
func BenchmarkExtract_Multipart(b *testing.B) {
	e := NewExtractor()
	raw := []byte(multipartBounce)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Extract(raw); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParse_DefaultRules benchmarks the built-in rules over a long notice
func BenchmarkParse_DefaultRules(b *testing.B) {
	p := DefaultParser()
	text := strings.Repeat("Delivery to the following recipient failed permanently:\n\n     user@example.com\n\n", 50)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Parse(text)
	}
}

func BenchmarkParse_NoMatch(b *testing.B) {
	p := DefaultParser()
	text := strings.Repeat("Nothing to see here, just an ordinary newsletter paragraph.\n", 200)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Parse(text)
	}
}
