package services

import (
	"strings"

	"jeoparty/models"
)

var winnerFlavor = map[string]string{
	"winner_flavor_1": "wins the game!",
	"winner_flavor_2": "share the victory!",
	"winner_flavor_3": "all share the victory!",
	"and":             "and",
}

// WinnerDescription picks the flavor template for the number of winners and
// renders the sentence announcing them.
func WinnerDescription(winners []*models.GameContestant) (string, string) {
	switch len(winners) {
	case 0:
		return "", ""
	case 1:
		return "winner_flavor_1", winners[0].Name() + " " + winnerFlavor["winner_flavor_1"]
	case 2:
		return "winner_flavor_2", winners[0].Name() + " " + winnerFlavor["and"] + " " + winners[1].Name() + " " + winnerFlavor["winner_flavor_2"]
	}

	names := make([]string, 0, len(winners)-1)
	for _, w := range winners[:len(winners)-1] {
		names = append(names, w.Name())
	}
	tied := strings.Join(names, ", ") + ", " + winnerFlavor["and"] + " " + winners[len(winners)-1].Name()
	return "winner_flavor_3", tied + " " + winnerFlavor["winner_flavor_3"]
}

func newEndscreenView(game *models.Game) *EndscreenView {
	sorted := game.SortedByScore()
	winners := game.Winners()

	view := &EndscreenView{Stage: game.Stage}
	for _, gc := range sorted {
		view.Contestants = append(view.Contestants, newContestantView(gc))
	}
	for _, gc := range winners {
		view.Winners = append(view.Winners, newContestantView(gc))
	}
	view.WinnerTemplate, view.WinnerDesc = WinnerDescription(winners)
	return view
}
