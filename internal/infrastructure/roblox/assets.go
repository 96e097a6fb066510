package roblox

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

// Asset kinds recognised in advertisement links.
const (
	KindGame    = "game"
	KindCatalog = "catalog"
	KindGroup   = "group"
)

// Asset is display metadata for a game, catalog item or group linked from an ad.
type Asset struct {
	Kind         string
	ID           int64
	Title        string
	Creator      string
	Description  string
	ThumbnailURL string
	Link         string
}

var linkPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{KindGame, regexp.MustCompile(`https?://(?:www\.)?roblox\.com/games/(\d+)[^\s]*`)},
	{KindCatalog, regexp.MustCompile(`https?://(?:www\.)?roblox\.com/catalog/(\d+)[^\s]*`)},
	{KindGroup, regexp.MustCompile(`https?://(?:www\.)?roblox\.com/(?:groups|communities)/(\d+)[^\s]*`)},
}

// FindLink returns the kind, numeric id and full URL of the first platform link in text.
func FindLink(text string) (kind string, id int64, link string, ok bool) {
	best := -1
	for _, p := range linkPatterns {
		loc := p.re.FindStringSubmatchIndex(text)
		if loc == nil || (best >= 0 && loc[0] >= best) {
			continue
		}
		n, err := strconv.ParseInt(text[loc[2]:loc[3]], 10, 64)
		if err != nil {
			continue
		}
		best = loc[0]
		kind, id, link, ok = p.kind, n, text[loc[0]:loc[1]], true
	}
	return kind, id, link, ok
}

// Describe fetches metadata for the first platform link found in text. It returns
// ErrNotFound when text links nothing the client understands.
func (c *Client) Describe(ctx context.Context, text string) (*Asset, error) {
	kind, id, link, ok := FindLink(text)
	if !ok {
		return nil, fmt.Errorf("no platform link: %w", ErrNotFound)
	}
	var (
		a   *Asset
		err error
	)
	switch kind {
	case KindGame:
		a, err = c.GameInfo(ctx, id)
	case KindCatalog:
		a, err = c.CatalogInfo(ctx, id)
	default:
		a, err = c.GroupInfo(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	a.Link = link
	return a, nil
}

// GameInfo looks up a place.
func (c *Client) GameInfo(ctx context.Context, placeID int64) (*Asset, error) {
	var out []struct {
		PlaceID     int64  `json:"placeId"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Builder     string `json:"builder"`
	}
	endpoint := fmt.Sprintf("%s/v1/games/multiget-place-details?placeIds=%d", c.endpoints.Games, placeID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("place %d: %w", placeID, ErrNotFound)
	}
	g := out[0]
	return &Asset{
		Kind:         KindGame,
		ID:           placeID,
		Title:        fmt.Sprintf("Play %s Today!", orDefault(g.Name, "Unknown Game")),
		Creator:      orDefault(g.Builder, "Unknown"),
		Description:  g.Description,
		ThumbnailURL: fmt.Sprintf("%s/asset-thumbnail/image?assetId=%d&width=420&height=420&format=png", c.endpoints.Web, placeID),
	}, nil
}

// CatalogInfo looks up a catalog (UGC) item.
func (c *Client) CatalogInfo(ctx context.Context, itemID int64) (*Asset, error) {
	var out struct {
		Data []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			CreatorName string `json:"creatorName"`
		} `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/v1/catalog/items/details?itemIds=%d", c.endpoints.Catalog, itemID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("catalog item %d: %w", itemID, ErrNotFound)
	}
	it := out.Data[0]
	return &Asset{
		Kind:        KindCatalog,
		ID:          itemID,
		Title:       orDefault(it.Name, "UGC Item"),
		Creator:     orDefault(it.CreatorName, "Unknown"),
		Description: it.Description,
	}, nil
}

// GroupInfo looks up a group.
func (c *Client) GroupInfo(ctx context.Context, groupID int64) (*Asset, error) {
	var out struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Owner       *struct {
			Username string `json:"username"`
		} `json:"owner"`
	}
	endpoint := fmt.Sprintf("%s/v1/groups/%d", c.endpoints.Groups, groupID)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	owner := "Unknown"
	if out.Owner != nil && out.Owner.Username != "" {
		owner = out.Owner.Username
	}
	return &Asset{
		Kind:         KindGroup,
		ID:           groupID,
		Title:        orDefault(out.Name, "Roblox Group"),
		Creator:      owner,
		Description:  out.Description,
		ThumbnailURL: fmt.Sprintf("%s/Thumbs/Group.ashx?gid=%d&x=420&y=420", c.endpoints.Web, groupID),
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
