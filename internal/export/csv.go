package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/domain"
)

// Filename is the download name the admin UI has always used; downstream
// spreadsheets key on it, so it is part of the contract.
const Filename = "admin_users_data.csv"

const ContentType = "text/csv"

// header order is fixed; reordering breaks downstream consumers.
var header = []string{"ID", "Name", "Email", "Total Posts", "Last Posted", "Total Likes", "Total Comments"}

// CSV serializes the snapshot, one row per user in snapshot order. Every
// field is wrapped in double quotes and embedded quotes/commas/newlines are
// NOT escaped; consumers of the historical export depend on the byte-exact
// shape, so the quoting stays as it always was.
func CSV(users []domain.CohortUser) string {
	var b strings.Builder

	writeRow(&b, header)
	for _, u := range users {
		writeRow(&b, []string{
			u.ID,
			u.Name,
			u.Email,
			strconv.Itoa(u.TotalPosts),
			lastPosted(u.LastPosted),
			strconv.Itoa(u.TotalLikes),
			strconv.Itoa(u.TotalComments),
		})
	}

	// rows are newline-joined, so drop the trailing one
	return strings.TrimSuffix(b.String(), "\n")
}

func writeRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(f)
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

func lastPosted(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.UTC().Format("2006-01-02")
}
