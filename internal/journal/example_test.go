package journal_test

import (
	"fmt"
	"log"
	"strings"

	"github.com/CleoKiama/cadence/internal/journal"
)

func ExampleExtract() {
	note := `---
workout: 45
reading: 20
mood: good
---
# Tuesday

workout: 999 is outside the front matter and ignored.
`

	records, err := journal.Extract(strings.NewReader(note), "/journal/2025-06-03.md", []string{"workout", "reading"})
	if err != nil {
		log.Fatal(err)
	}
	for _, r := range records {
		fmt.Printf("%s %s=%d\n", r.Date.Format("2006-01-02"), r.Name, r.Value)
	}
	// Output:
	// 2025-06-03 workout=45
	// 2025-06-03 reading=20
}
