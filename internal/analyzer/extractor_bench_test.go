package analyzer

import (
	"strings"
	"testing"
)

// benchmarkContent generates a realistic HTML page of roughly size bytes.
func benchmarkContent(size int) string {
	sb := strings.Builder{}
	sb.Grow(size)

	fragments := []string{
		`<a href="/account/settings">Settings</a> <a href="https://cdn.example.com/static/app.js">app</a>`,
		`<script>fetch("/api/v2/orders?page=2"); var img = 'https://img.example.com/p/1.png';</script>`,
		`<p>Contact support, or read the docs at https://docs.example.com/guide/intro.</p>`,
		`<form action="/login" method="post"><input name="user"></form>`,
		`<div data-endpoint="/internal/metrics">plain text with a/b/c and 1/2 ratios</div>`,
	}

	for sb.Len() < size {
		for _, f := range fragments {
			sb.WriteString(f)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func benchmarkExtract(b *testing.B, size int, opts Options) {
	content := benchmarkContent(size)
	e := NewExtractor(opts)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		e.Extract(content, "text/html", "https://example.com/blog/test")
	}
}

func BenchmarkExtract_SmallContent(b *testing.B) {
	benchmarkExtract(b, 1024, Options{}) // 1KB
}

func BenchmarkExtract_MediumContent(b *testing.B) {
	benchmarkExtract(b, 10*1024, Options{}) // 10KB
}

func BenchmarkExtract_LargeContent(b *testing.B) {
	benchmarkExtract(b, 100*1024, Options{}) // 100KB
}

func BenchmarkExtract_AllPasses(b *testing.B) {
	benchmarkExtract(b, 50*1024, Options{HTMLAttributes: true, ScriptCalls: true})
}

func BenchmarkNormalize(b *testing.B) {
	n := NewNormalizer()
	values := []string{"/api/v2/orders?page=2", "https://cdn.example.com/static/app.js", "api/relative", "//cdn.example.com/x"}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		for _, v := range values {
			n.Normalize(v, "https://example.com/blog/test")
		}
	}
}
