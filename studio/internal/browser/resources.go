package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// blockResources fails requests of the configured types. Studio itself
// needs stylesheets and scripts; fonts and media are the usual candidates.
func blockResources(page *rod.Page, types []string) *rod.HijackRouter {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blockSet, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// shouldBlock maps a CDP resource type to its config name.
func shouldBlock(blockSet map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	switch lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	}
	return blockSet[lower]
}
