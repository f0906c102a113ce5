package nanobanana

import "encoding/json"

// envelope is the common shape of every NanoBanana response.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// generateRequest is the body of POST /generate-pro.
type generateRequest struct {
	Prompt      string   `json:"prompt"`
	ImageURLs   []string `json:"imageUrls"`
	Resolution  string   `json:"resolution"`
	AspectRatio string   `json:"aspectRatio"`
	CallBackURL string   `json:"callBackUrl"`
}

type generateData struct {
	TaskID string `json:"taskId"`
}

// recordInfoData is the data field of GET /record-info.
type recordInfoData struct {
	TaskID       string              `json:"taskId"`
	SuccessFlag  int                 `json:"successFlag"`
	Response     *recordInfoResponse `json:"response"`
	ErrorMessage string              `json:"errorMessage"`
}

type recordInfoResponse struct {
	ResultImageURL string `json:"resultImageUrl"`
	// OriginImageURL is the provider's un-proxied copy; used when
	// resultImageUrl is missing.
	OriginImageURL string `json:"originImageUrl"`
}
