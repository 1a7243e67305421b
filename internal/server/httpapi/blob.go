package httpapi

import "net/http"

type uploadURLResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func (h *Handler) HandleBlobUploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	key, url, err := h.blob.PresignedPutURL(r.Context())
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, uploadURLResponse{Key: key, URL: url})
}

type downloadURLResponse struct {
	URL string `json:"url"`
}

func (h *Handler) HandleBlobDownloadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, ok := h.authenticate(w, r); !ok {
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	url, err := h.blob.PresignedGetURL(r.Context(), key)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, downloadURLResponse{URL: url})
}
