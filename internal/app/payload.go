package app

import (
	"time"

	"github.com/tanmvo/relevance-ai-chat/internal/store"
	"github.com/tanmvo/relevance-ai-chat/internal/tripview"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func chatPayload(chat store.Chat) map[string]any {
	return map[string]any{
		"id":         chat.ID,
		"userId":     chat.UserID,
		"title":      chat.Title,
		"visibility": chat.Visibility,
		"createdAt":  formatTime(chat.CreatedAt),
	}
}

func itineraryPayload(it store.Itinerary) map[string]any {
	return map[string]any{
		"id":          it.ID,
		"chatId":      it.ChatID,
		"tripName":    it.TripName,
		"destination": it.Destination,
		"startDate":   it.StartDate,
		"endDate":     it.EndDate,
		"adults":      it.Adults,
		"children":    it.Children,
		"createdAt":   formatTime(it.CreatedAt),
		"updatedAt":   formatTime(it.UpdatedAt),
	}
}

func itemPayload(item store.ItineraryItem) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"itineraryId": item.ItineraryID,
		"day":         item.Day,
		"timeBlock":   item.TimeBlock,
		"type":        item.Type,
		"name":        item.Name,
		"description": item.Description,
		"price":       item.Price,
		"imageUrl":    item.ImageURL,
		"sortOrder":   item.SortOrder,
		"createdAt":   formatTime(item.CreatedAt),
	}
}

func itemsPayload(items []store.ItineraryItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, itemPayload(item))
	}
	return out
}

func daysPayload(days []tripview.Day) []map[string]any {
	out := make([]map[string]any, 0, len(days))
	for _, day := range days {
		blocks := make([]map[string]any, 0, len(day.Blocks))
		for _, block := range day.Blocks {
			blocks = append(blocks, map[string]any{
				"timeBlock": block.TimeBlock,
				"items":     itemsPayload(block.Items),
			})
		}
		out = append(out, map[string]any{
			"date":          day.Date,
			"number":        day.Number,
			"label":         day.Label(),
			"accommodation": itemsPayload(day.Accommodation),
			"blocks":        blocks,
		})
	}
	return out
}

// tripPayload is the {itinerary, items, days} shape shared by the owner and
// public itinerary routes.
func tripPayload(it store.Itinerary, items []store.ItineraryItem) map[string]any {
	days := tripview.GroupByDay(tripview.DayList(it, items), items)
	return map[string]any{
		"itinerary": itineraryPayload(it),
		"items":     itemsPayload(items),
		"days":      daysPayload(days),
	}
}

func votePayload(vote store.PollVote) map[string]any {
	return map[string]any{
		"id":           vote.ID,
		"pollOptionId": vote.PollOptionID,
		"voterName":    vote.VoterName,
		"createdAt":    formatTime(vote.CreatedAt),
	}
}

func pollPayload(poll store.Poll) map[string]any {
	options := make([]map[string]any, 0, len(poll.Options))
	for _, option := range poll.Options {
		votes := make([]map[string]any, 0, len(option.Votes))
		for _, vote := range option.Votes {
			votes = append(votes, votePayload(vote))
		}
		options = append(options, map[string]any{
			"id":          option.ID,
			"pollId":      option.PollID,
			"label":       option.Label,
			"description": option.Description,
			"sortOrder":   option.SortOrder,
			"votes":       votes,
		})
	}
	return map[string]any{
		"id":          poll.ID,
		"chatId":      poll.ChatID,
		"itineraryId": poll.ItineraryID,
		"question":    poll.Question,
		"type":        poll.Type,
		"status":      poll.Status,
		"createdAt":   formatTime(poll.CreatedAt),
		"updatedAt":   formatTime(poll.UpdatedAt),
		"options":     options,
		"tally":       tripview.TallyPoll(poll),
	}
}

func tripContextPayload(it store.Itinerary) map[string]any {
	return map[string]any{
		"tripName":    it.TripName,
		"destination": it.Destination,
		"startDate":   it.StartDate,
		"endDate":     it.EndDate,
	}
}
