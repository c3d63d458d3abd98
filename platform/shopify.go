package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// ShopifyAdapter talks to the Shopify Admin GraphQL API. Writes go through the
// typed update mutations so the platform validates ownership of the resource.
type ShopifyAdapter struct {
	storeDomain string
	accessToken string
	apiVersion  string
	http        *http.Client
	limiter     <-chan time.Time
}

func NewShopifyAdapter(storeDomain string, accessToken string) *ShopifyAdapter {
	apiVersion := strings.TrimSpace(os.Getenv("SHOPIFY_API_VERSION"))
	if apiVersion == "" {
		apiVersion = "2024-04"
	}
	rateLimitPerMin := int64(40)
	if v := strings.TrimSpace(os.Getenv("SHOPIFY_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	return &ShopifyAdapter{
		storeDomain: strings.TrimRight(storeDomain, "/"),
		accessToken: accessToken,
		apiVersion:  apiVersion,
		http:        &http.Client{Timeout: 30 * time.Second},
		limiter:     time.Tick(time.Minute / time.Duration(rateLimitPerMin)),
	}
}

type shopifyGraphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type shopifyGraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (a *ShopifyAdapter) endpoint() string {
	domain := a.storeDomain
	if !strings.HasPrefix(domain, "http") {
		domain = "https://" + domain
	}
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", domain, a.apiVersion)
}

func (a *ShopifyAdapter) do(ctx context.Context, gql shopifyGraphQLRequest) (json.RawMessage, error) {
	<-a.limiter
	body, err := json.Marshal(gql)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", a.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, newTransportError("shopify", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newHTTPError("shopify", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed shopifyGraphQLResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, newTransportError("shopify", err)
	}
	if len(parsed.Errors) > 0 {
		// GraphQL-level errors arrive with HTTP 200. Throttling is the only
		// retryable one.
		msg := parsed.Errors[0].Message
		retryable := strings.Contains(strings.ToLower(msg), "throttled")
		return nil, &Error{Provider: "shopify", Retryable: retryable, Message: msg}
	}
	return parsed.Data, nil
}

func shopifyGid(ref ResourceRef) string {
	if strings.HasPrefix(ref.Id, "gid://") {
		return ref.Id
	}
	switch ref.Type {
	case "product":
		return "gid://shopify/Product/" + ref.Id
	case "page":
		return "gid://shopify/Page/" + ref.Id
	case "media":
		return "gid://shopify/MediaImage/" + ref.Id
	default:
		return ref.Id
	}
}

func (a *ShopifyAdapter) ReadResource(ctx context.Context, ref ResourceRef, fields []string) (Fields, error) {
	var query string
	switch ref.Type {
	case "product":
		query = `query($id: ID!) { product(id: $id) { title seo { title description } featuredImage { altText } } }`
	case "page":
		query = `query($id: ID!) { page(id: $id) { title seo { title description } } }`
	case "media":
		query = `query($id: ID!) { node(id: $id) { ... on MediaImage { alt } } }`
	default:
		return nil, &Error{Provider: "shopify", Message: "unsupported resource type: " + ref.Type}
	}

	data, err := a.do(ctx, shopifyGraphQLRequest{
		Query:     query,
		Variables: map[string]interface{}{"id": shopifyGid(ref)},
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Product *struct {
			Title string `json:"title"`
			Seo   struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"seo"`
			FeaturedImage *struct {
				AltText string `json:"altText"`
			} `json:"featuredImage"`
		} `json:"product"`
		Page *struct {
			Title string `json:"title"`
			Seo   struct {
				Title       string `json:"title"`
				Description string `json:"description"`
			} `json:"seo"`
		} `json:"page"`
		Node *struct {
			Alt string `json:"alt"`
		} `json:"node"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, newTransportError("shopify", err)
	}

	live := Fields{}
	switch {
	case payload.Product != nil:
		live["metaTitle"] = payload.Product.Seo.Title
		live["metaDescription"] = payload.Product.Seo.Description
		live["h1"] = payload.Product.Title
		if payload.Product.FeaturedImage != nil {
			live["altText"] = payload.Product.FeaturedImage.AltText
		}
	case payload.Page != nil:
		live["metaTitle"] = payload.Page.Seo.Title
		live["metaDescription"] = payload.Page.Seo.Description
		live["h1"] = payload.Page.Title
	case payload.Node != nil:
		live["altText"] = payload.Node.Alt
	default:
		return nil, &Error{Provider: "shopify", Message: "resource not found: " + ref.String()}
	}

	out := Fields{}
	for _, f := range fields {
		out[f] = live[f]
	}
	return out, nil
}

func (a *ShopifyAdapter) CountResources(ctx context.Context, resourceType string) (int, error) {
	var query string
	switch resourceType {
	case "product":
		query = `{ productsCount { count } }`
	case "page":
		query = `{ pagesCount { count } }`
	case "media":
		query = `{ filesCount { count } }`
	default:
		return 0, &Error{Provider: "shopify", Message: "unsupported resource type: " + resourceType}
	}

	data, err := a.do(ctx, shopifyGraphQLRequest{Query: query})
	if err != nil {
		return 0, err
	}

	var payload map[string]struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, newTransportError("shopify", err)
	}
	for _, result := range payload {
		return result.Count, nil
	}
	return 0, &Error{Provider: "shopify", Message: "count missing from response"}
}

func (a *ShopifyAdapter) WriteResource(ctx context.Context, ref ResourceRef, changes Fields) error {
	var mutation string
	input := map[string]interface{}{"id": shopifyGid(ref)}

	switch ref.Type {
	case "product", "page":
		seo := map[string]interface{}{}
		if v, ok := changes["metaTitle"]; ok {
			seo["title"] = v
		}
		if v, ok := changes["metaDescription"]; ok {
			seo["description"] = v
		}
		if len(seo) > 0 {
			input["seo"] = seo
		}
		if v, ok := changes["h1"]; ok {
			input["title"] = v
		}
		if ref.Type == "product" {
			mutation = `mutation($input: ProductInput!) { productUpdate(input: $input) { userErrors { field message } } }`
		} else {
			mutation = `mutation($input: PageUpdateInput!) { pageUpdate(input: $input) { userErrors { field message } } }`
		}
	case "media":
		if v, ok := changes["altText"]; ok {
			input["alt"] = v
		}
		mutation = `mutation($input: FileUpdateInput!) { fileUpdate(files: [$input]) { userErrors { field message } } }`
	default:
		return &Error{Provider: "shopify", Message: "unsupported resource type: " + ref.Type}
	}

	data, err := a.do(ctx, shopifyGraphQLRequest{
		Query:     mutation,
		Variables: map[string]interface{}{"input": input},
	})
	if err != nil {
		return err
	}

	var payload map[string]struct {
		UserErrors []struct {
			Message string `json:"message"`
		} `json:"userErrors"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return newTransportError("shopify", err)
	}
	for _, result := range payload {
		if len(result.UserErrors) > 0 {
			return &Error{Provider: "shopify", Message: result.UserErrors[0].Message}
		}
	}
	return nil
}
