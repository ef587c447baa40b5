package cleaner

import "testing"

func TestToMarkdown(t *testing.T) {
	tests := []struct {
		name, in, domain, want string
	}{
		{"emphasis", "<p>Build <strong>APIs</strong>.</p>", "", "Build **APIs**."},
		{"list", "<ul><li>Pool</li><li>Garage</li></ul>", "", "- Pool\n- Garage"},
		{"relative link", `<a href="/home/123">Listing</a>`, "https://www.redfin.com", "[Listing](https://www.redfin.com/home/123)"},
		{"drops scripts", "<p>Hi</p><script>alert(1)</script>", "", "Hi"},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMarkdown(tt.in, tt.domain)
			if err != nil {
				t.Fatalf("ToMarkdown: %v", err)
			}
			if got != tt.want {
				t.Errorf("ToMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
