// Package tiktok scrapes TikTok posts, profiles, comments and search
// results. Posts and profiles come from the rehydration JSON embedded in
// the page; comments and search use the web app's JSON APIs.
package tiktok

import (
	"context"
	"net/url"
	"strconv"

	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/extract"
	"github.com/use-agent/harvest/models"
	"github.com/use-agent/harvest/scraper"
)

const (
	rehydrationData = "script#__UNIVERSAL_DATA_FOR_REHYDRATION__"

	commentsAPI = "https://www.tiktok.com/api/comment/list/"
	searchAPI   = "https://www.tiktok.com/api/search/general/full/"
	searchPage  = "https://www.tiktok.com/search"

	// searchID is accepted by the search API for any keyword.
	searchID = "2024022710453229C796B3BF936930E248"

	// DefaultCommentsPageSize and DefaultSearchPageSize are the page sizes
	// used when the caller passes zero.
	DefaultCommentsPageSize = 20
	DefaultSearchPageSize   = 12
)

// Scraper runs the TikTok operations.
type Scraper struct {
	s *scraper.Scraper
}

// New creates a TikTok scraper.
func New(s *scraper.Scraper) *Scraper {
	return &Scraper{s: s}
}

var postFields = extract.FieldMap[gson.JSON]{
	extract.F("id", extract.Str("id")),
	extract.F("desc", extract.Str("desc")),
	extract.F("createTime", extract.Path("createTime")),
	extract.F("video", extract.Sub([]any{"video"}, extract.FieldMap[gson.JSON]{
		extract.F("duration", extract.Path("duration")),
		extract.F("ratio", extract.Path("ratio")),
		extract.F("cover", extract.Path("cover")),
		extract.F("playAddr", extract.Path("playAddr")),
		extract.F("downloadAddr", extract.Path("downloadAddr")),
		extract.F("bitrate", extract.Path("bitrate")),
	})),
	extract.F("author", extract.Sub([]any{"author"}, extract.FieldMap[gson.JSON]{
		extract.F("id", extract.Path("id")),
		extract.F("uniqueId", extract.Path("uniqueId")),
		extract.F("nickname", extract.Path("nickname")),
		extract.F("avatarLarger", extract.Path("avatarLarger")),
		extract.F("signature", extract.Path("signature")),
		extract.F("verified", extract.Path("verified")),
	})),
	extract.F("stats", extract.Path("stats")),
	extract.F("locationCreated", extract.Path("locationCreated")),
	extract.F("diversificationLabels", extract.Path("diversificationLabels")),
	extract.F("suggestedWords", extract.Path("suggestedWords")),
	extract.F("contents", extract.Each([]any{"contents"}, extract.FieldMap[gson.JSON]{
		extract.F("textExtra", extract.Each([]any{"textExtra"}, extract.FieldMap[gson.JSON]{
			extract.F("hashtagName", extract.Path("hashtagName")),
		})),
	})),
}

var commentFields = extract.FieldMap[gson.JSON]{
	extract.F("text", extract.Path("text")),
	extract.F("comment_language", extract.Path("comment_language")),
	extract.F("digg_count", extract.Path("digg_count")),
	extract.F("reply_comment_total", extract.Path("reply_comment_total")),
	extract.F("author_pin", extract.Path("author_pin")),
	extract.F("create_time", extract.Path("create_time")),
	extract.F("cid", extract.Path("cid")),
	extract.F("nickname", extract.Path("user", "nickname")),
	extract.F("unique_id", extract.Path("user", "unique_id")),
	extract.F("aweme_id", extract.Path("aweme_id")),
}

var searchFields = extract.FieldMap[gson.JSON]{
	extract.F("id", extract.Path("id")),
	extract.F("desc", extract.Path("desc")),
	extract.F("createTime", extract.Path("createTime")),
	extract.F("video", extract.Path("video")),
	extract.F("author", extract.Path("author")),
	extract.F("stats", extract.Path("stats")),
	extract.F("authorStats", extract.Path("authorStats")),
	extract.F("type", extract.Const[gson.JSON](videoItem)),
}

// videoItem is the search result type of plain videos.
const videoItem = 1

// ScrapePosts scrapes post pages.
func (t *Scraper) ScrapePosts(ctx context.Context, urls []string) (*scraper.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no post urls given", nil)
	}
	return t.s.Each(ctx, "tiktok posts", t.s.Requests(urls), scraper.One(parsePost)), nil
}

func parsePost(res *engine.FetchResult) (extract.Record, error) {
	post, err := extract.HiddenData(res, rehydrationData,
		"__DEFAULT_SCOPE__", "webapp.video-detail", "itemInfo", "itemStruct")
	if err != nil {
		return nil, err
	}
	return extract.Apply(post, postFields), nil
}

// ScrapeProfiles scrapes profile pages. Profiles are rendered in a
// browser, since their rehydration data is only complete after scripts run.
func (t *Scraper) ScrapeProfiles(ctx context.Context, urls []string) (*scraper.Result, error) {
	if len(urls) == 0 {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "no profile urls given", nil)
	}
	reqs := t.s.Requests(urls, func(rt *scraper.RequestTemplate) { rt.RenderJS = true })
	return t.s.Each(ctx, "tiktok profiles", reqs, scraper.One(parseProfile)), nil
}

func parseProfile(res *engine.FetchResult) (extract.Record, error) {
	info, err := extract.HiddenData(res, rehydrationData,
		"__DEFAULT_SCOPE__", "webapp.user-detail", "userInfo")
	if err != nil {
		return nil, err
	}
	return extract.Object(info, res.URL())
}

// ScrapeComments pages through the comments of one post. maxComments caps
// the number of comments requested; zero means all of them.
func (t *Scraper) ScrapeComments(ctx context.Context, postID string, pageSize, maxComments int) (*scraper.Result, error) {
	if postID == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "post id is required", nil)
	}
	if pageSize <= 0 {
		pageSize = DefaultCommentsPageSize
	}

	tmpl := t.s.Template(commentsAPI)
	tmpl.Params = url.Values{
		"aweme_id": {postID},
		"count":    {strconv.Itoa(pageSize)},
	}
	tmpl.CursorParam = "cursor"
	tmpl.Headers = map[string]string{"content-type": "application/json"}

	return t.s.Paginate(ctx, scraper.Pagination{
		Name:     "tiktok comments",
		Template: tmpl,
		PageSize: pageSize,
		MaxItems: maxComments,
		Mode:     scraper.ByTotal,
		Parse:    parseComments,
	})
}

func parseComments(res *engine.FetchResult) (scraper.Page, error) {
	root, err := extract.JSONBody(res)
	if err != nil {
		return scraper.Page{}, err
	}
	total, err := extract.Descend(root, res.URL(), "total")
	if err != nil {
		return scraper.Page{}, err
	}
	// A post without comments reports "comments": null.
	if total.Int() == 0 {
		return scraper.Page{}, nil
	}
	comments, err := extract.Items(root, res.URL(), []any{"comments"}, nil, commentFields)
	if err != nil {
		return scraper.Page{}, err
	}
	return scraper.Page{Records: comments, Total: total.Int()}, nil
}

// ScrapeSearch scrapes video results for keyword. The search API only
// answers within a session opened on the search page, and it reports a
// has-more flag instead of a total. maxSearch caps the number of results
// requested; zero means until the results run out.
func (t *Scraper) ScrapeSearch(ctx context.Context, keyword string, maxSearch, pageSize int) (*scraper.Result, error) {
	if keyword == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "keyword is required", nil)
	}
	if pageSize <= 0 {
		pageSize = DefaultSearchPageSize
	}

	session, err := t.s.ObtainSession(ctx, searchPage+"?"+url.Values{"q": {keyword}}.Encode())
	if err != nil {
		return nil, err
	}
	defer t.s.EndSession(session)

	tmpl := t.s.Template(searchAPI)
	tmpl.Params = url.Values{
		"keyword":   {keyword},
		"search_id": {searchID},
	}
	tmpl.CursorParam = "offset"
	tmpl.Headers = map[string]string{"content-type": "application/json"}
	tmpl.Session = session

	return t.s.Paginate(ctx, scraper.Pagination{
		Name:     "tiktok search",
		Template: tmpl,
		PageSize: pageSize,
		MaxItems: maxSearch,
		Mode:     scraper.ByHasMore,
		Parse:    parseSearch,
	})
}

func parseSearch(res *engine.FetchResult) (scraper.Page, error) {
	root, err := extract.JSONBody(res)
	if err != nil {
		return scraper.Page{}, err
	}
	items, err := extract.Items(root, res.URL(), []any{"data"}, onlyVideos, searchFields)
	if err != nil {
		return scraper.Page{}, err
	}
	return scraper.Page{Records: items, HasMore: truthy(root.Get("has_more"))}, nil
}

// onlyVideos keeps plain video results and unwraps their item object.
func onlyVideos(el gson.JSON) (gson.JSON, bool) {
	typ, ok := el.Gets("type")
	if !ok || typ.Int() != videoItem {
		return el, false
	}
	return el.Gets("item")
}

// truthy accepts both the 0/1 and the boolean form of a flag.
func truthy(v gson.JSON) bool {
	if b, ok := v.Val().(bool); ok {
		return b
	}
	return v.Num() != 0
}
