package collector

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

// FeedParser handles portals that expose their auction calendar as a JSON
// feed. Index pages are arrays of preview rows; detail pages are single
// objects.
type FeedParser struct{}

func (FeedParser) ParseIndex(body []byte) ([]model.ListingPreview, error) {
	var previews []model.ListingPreview
	if err := json.Unmarshal(body, &previews); err != nil {
		return nil, eris.Wrap(err, "collector: decode index feed")
	}
	return previews, nil
}

func (FeedParser) ParseDetail(body []byte) (*model.DetailPayload, error) {
	var detail model.DetailPayload
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, eris.Wrap(err, "collector: decode detail feed")
	}
	if detail.Address == "" && detail.CaseNumber == "" {
		return nil, eris.New("collector: detail feed missing address and case number")
	}
	return &detail, nil
}
