package studio

import (
	"context"

	"github.com/hazyhaar/tubemaster/kit"
)

// Requests shared by the control API and the MCP tools.
type (
	suggestReq    struct{ Text string `json:"text"` }
	populateReq   struct{ Text string `json:"text"` }
	describeReq   struct{ Keywords string `json:"keywords"` }
	historyReq    struct{ Direction string `json:"direction"` }
	readReq       struct{ Markdown bool `json:"markdown"` }
	thumbnailsReq struct{ Description string `json:"description"` }
	tokenReq      struct{ Token string `json:"token"` }
	emptyReq      struct{}
)

type suggestResp struct {
	Suggestions []Suggestion `json:"suggestions"`
	// Fallback is set when the API failed and templates were shown.
	Fallback bool `json:"fallback,omitempty"`
}

type thumbnailsResp struct {
	Thumbnails []Thumbnail `json:"thumbnails"`
}

type statusResp struct {
	Status string `json:"status"`
}

type readResp struct {
	Text     string `json:"text"`
	Markdown bool   `json:"markdown"`
}

// endpointSet holds every operation once; the HTTP and MCP surfaces adapt
// them.
type endpointSet struct {
	status              kit.Endpoint
	rescan              kit.Endpoint
	suggestTitles       kit.Endpoint
	populateTitle       kit.Endpoint
	generateDescription kit.Endpoint
	history             kit.Endpoint
	insert              kit.Endpoint
	read                kit.Endpoint
	generateThumbnails  kit.Endpoint
	storeToken          kit.Endpoint
	signOut             kit.Endpoint
}

func (e *Engine) endpoints() endpointSet {
	logged := func(op string, ep kit.Endpoint) kit.Endpoint {
		return kit.Logging(e.logger, op)(ep)
	}
	return endpointSet{
		status: logged("status", func(ctx context.Context, _ any) (any, error) {
			return e.Status(ctx)
		}),
		rescan: logged("rescan", func(ctx context.Context, _ any) (any, error) {
			return e.Rescan(ctx)
		}),
		suggestTitles: logged("suggest_titles", func(ctx context.Context, req any) (any, error) {
			items, err := e.SuggestTitles(ctx, req.(*suggestReq).Text)
			if err != nil && len(items) == 0 {
				return nil, err
			}
			return suggestResp{Suggestions: items, Fallback: err != nil}, nil
		}),
		populateTitle: logged("populate_title", func(ctx context.Context, req any) (any, error) {
			if err := e.PopulateTitle(ctx, req.(*populateReq).Text); err != nil {
				return nil, err
			}
			return statusResp{Status: "populated"}, nil
		}),
		generateDescription: logged("generate_description", func(ctx context.Context, req any) (any, error) {
			return e.GenerateDescription(ctx, req.(*describeReq).Keywords)
		}),
		history: logged("description_history", func(ctx context.Context, req any) (any, error) {
			dir := req.(*historyReq).Direction
			if dir == "" {
				dir = "current"
			}
			return e.NavigateHistory(ctx, dir)
		}),
		insert: logged("insert_description", func(ctx context.Context, _ any) (any, error) {
			if err := e.InsertDescription(ctx); err != nil {
				return nil, err
			}
			return statusResp{Status: "inserted"}, nil
		}),
		read: logged("read_description", func(ctx context.Context, req any) (any, error) {
			md := req.(*readReq).Markdown
			text, err := e.ReadDescription(ctx, md)
			if err != nil {
				return nil, err
			}
			return readResp{Text: text, Markdown: md}, nil
		}),
		generateThumbnails: logged("generate_thumbnails", func(ctx context.Context, req any) (any, error) {
			thumbs, err := e.GenerateThumbnails(ctx, req.(*thumbnailsReq).Description)
			if err != nil {
				return nil, err
			}
			return thumbnailsResp{Thumbnails: thumbs}, nil
		}),
		storeToken: logged("store_token", func(ctx context.Context, req any) (any, error) {
			return e.StoreToken(ctx, req.(*tokenReq).Token)
		}),
		signOut: logged("sign_out", func(ctx context.Context, _ any) (any, error) {
			if err := e.SignOut(ctx); err != nil {
				return nil, err
			}
			return statusResp{Status: "signed_out"}, nil
		}),
	}
}
