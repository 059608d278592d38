// Package score computes the completeness confidence score for candidate
// events. The score breaks ties between duplicate extractions and decides
// whether a re-extraction may overwrite a stored record; it never rejects
// a candidate on its own.
package score

import "github.com/cityscout/events-cli/internal/model"

// minDescriptionLength is the description length below which the
// description contributes no points.
const minDescriptionLength = 50

// Point schedule. Each condition is independent and additive; the maximum
// attainable sum is 100 by construction.
const (
	pointsImage       = 20
	pointsDescription = 20
	pointsTicketURL   = 15
	pointsEndTime     = 10
	pointsOrganizer   = 15
	pointsAddress     = 20
)

// Confidence returns the completeness score for a candidate, in [0, 100].
func Confidence(e model.CandidateEvent) int {
	s := 0
	if model.NonTrivial(e.ImageURL) {
		s += pointsImage
	}
	if len(e.Description) > minDescriptionLength {
		s += pointsDescription
	}
	if e.TicketURL != "" {
		s += pointsTicketURL
	}
	if e.EndTime != nil && !e.EndTime.Equal(e.StartTime) {
		s += pointsEndTime
	}
	if model.NonTrivial(e.OrganizerName) {
		s += pointsOrganizer
	}
	if model.NonTrivial(e.LocationAddress) {
		s += pointsAddress
	}
	return s
}
