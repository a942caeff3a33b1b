// Package tripview rebuilds the day-by-day itinerary and poll tallies from
// normalized store rows.
package tripview

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/tanmvo/relevance-ai-chat/internal/store"
)

const dateLayout = "2006-01-02"

type Block struct {
	TimeBlock string                `json:"timeBlock"`
	Items     []store.ItineraryItem `json:"items"`
}

type Day struct {
	Date          string                `json:"date"`
	Number        int                   `json:"number"`
	Accommodation []store.ItineraryItem `json:"accommodation"`
	Blocks        []Block               `json:"blocks"`
}

// Label renders the day header, e.g. "Day 2: Wednesday, Apr 2".
func (d Day) Label() string {
	parsed, err := time.Parse(dateLayout, d.Date)
	if err != nil {
		return fmt.Sprintf("Day %d", d.Number)
	}
	return fmt.Sprintf("Day %d: %s, %s", d.Number, parsed.Weekday(), parsed.Format("Jan 2"))
}

// DayList returns every date from start to end when both are set and ordered,
// otherwise the sorted distinct days that carry items.
func DayList(it store.Itinerary, items []store.ItineraryItem) []string {
	if days, ok := dateRange(it.StartDate, it.EndDate); ok {
		return days
	}
	days := lo.Uniq(lo.Map(items, func(item store.ItineraryItem, _ int) string { return item.Day }))
	sort.Strings(days)
	return days
}

func dateRange(startDate, endDate *string) ([]string, bool) {
	if startDate == nil || endDate == nil {
		return nil, false
	}
	start, err := time.Parse(dateLayout, *startDate)
	if err != nil {
		return nil, false
	}
	end, err := time.Parse(dateLayout, *endDate)
	if err != nil || end.Before(start) {
		return nil, false
	}
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(dateLayout))
	}
	return days, true
}

// GroupByDay splits items into one Day per entry of days. Accommodation sits
// apart from the blocks and every canonical block is present, possibly empty.
// Items keep the order they were given in.
func GroupByDay(days []string, items []store.ItineraryItem) []Day {
	byDay := lo.GroupBy(items, func(item store.ItineraryItem) string { return item.Day })

	grouped := make([]Day, 0, len(days))
	for i, date := range days {
		dayItems := byDay[date]
		accommodation, rest := lo.FilterReject(dayItems, func(item store.ItineraryItem, _ int) bool {
			return item.Type == store.ItemAccommodation
		})
		byBlock := lo.GroupBy(rest, func(item store.ItineraryItem) string {
			block, ok := NormalizeTimeBlock(item.TimeBlock)
			if !ok {
				return item.TimeBlock
			}
			return block
		})
		blocks := lo.Map(TimeBlocks, func(block string, _ int) Block {
			return Block{TimeBlock: block, Items: emptyIfNil(byBlock[block])}
		})
		grouped = append(grouped, Day{
			Date:          date,
			Number:        i + 1,
			Accommodation: emptyIfNil(accommodation),
			Blocks:        blocks,
		})
	}
	return grouped
}

func emptyIfNil(items []store.ItineraryItem) []store.ItineraryItem {
	if items == nil {
		return []store.ItineraryItem{}
	}
	return items
}

type OptionTally struct {
	OptionID    string   `json:"optionId"`
	Label       string   `json:"label"`
	Description *string  `json:"description,omitempty"`
	VoteCount   int      `json:"voteCount"`
	Voters      []string `json:"voters"`
	Percentage  int      `json:"percentage"`
}

type Tally struct {
	PollID     string        `json:"pollId"`
	Question   string        `json:"question"`
	Status     string        `json:"status"`
	Options    []OptionTally `json:"options"`
	TotalVotes int           `json:"totalVotes"`
}

func TallyPoll(poll store.Poll) Tally {
	total := lo.SumBy(poll.Options, func(option store.PollOption) int { return len(option.Votes) })
	options := lo.Map(poll.Options, func(option store.PollOption, _ int) OptionTally {
		count := len(option.Votes)
		percentage := 0
		if total > 0 {
			percentage = int(math.Round(float64(count) / float64(total) * 100))
		}
		return OptionTally{
			OptionID:    option.ID,
			Label:       option.Label,
			Description: option.Description,
			VoteCount:   count,
			Voters:      lo.Map(option.Votes, func(v store.PollVote, _ int) string { return v.VoterName }),
			Percentage:  percentage,
		}
	})
	return Tally{
		PollID:     poll.ID,
		Question:   poll.Question,
		Status:     poll.Status,
		Options:    options,
		TotalVotes: total,
	}
}

// SortPolls orders active polls before submitted ones, newest first within each.
// The input slice is not modified.
func SortPolls(polls []store.Poll) []store.Poll {
	sorted := append([]store.Poll(nil), polls...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ai, aj := sorted[i].Status == store.PollActive, sorted[j].Status == store.PollActive
		if ai != aj {
			return ai
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	return sorted
}

func ResultsMessage(tally Tally, userMessage string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Poll Results: %s\n\n", tally.Question)
	for _, option := range tally.Options {
		fmt.Fprintf(&b, "- %s: %s (%d%%)", option.Label, voteCount(option.VoteCount), option.Percentage)
		if len(option.Voters) > 0 {
			fmt.Fprintf(&b, " - %s", strings.Join(option.Voters, ", "))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nTotal: %s", voteCount(tally.TotalVotes))
	if msg := strings.TrimSpace(userMessage); msg != "" {
		fmt.Fprintf(&b, "\n\n%s", msg)
	}
	return b.String()
}

func voteCount(n int) string {
	if n == 1 {
		return "1 vote"
	}
	return fmt.Sprintf("%d votes", n)
}
