package transport

import "net/http"

type Handler interface {
	upload(w http.ResponseWriter, r *http.Request)
	list(w http.ResponseWriter, r *http.Request)
	audio(w http.ResponseWriter, r *http.Request)
}

type Live interface {
	live(w http.ResponseWriter, r *http.Request)
	online(w http.ResponseWriter, r *http.Request)
	broadcast(w http.ResponseWriter, r *http.Request)
}

type router struct {
	h    Handler
	live Live
}

func NewRouter(h Handler, live Live) *router {
	return &router{h: h, live: live}
}

func (r *router) MountRoutes(mux *http.ServeMux) *http.ServeMux {
	mux.HandleFunc("/audio", r.dispatchAudioRoot)
	mux.HandleFunc("/audio/", r.h.audio)
	mux.HandleFunc("/live/online", r.live.online)
	mux.HandleFunc("/live/broadcast", r.live.broadcast)
	mux.HandleFunc("/live/", r.live.live)

	return mux
}

// dispatchAudioRoot splits POST /audio (upload) from GET /audio (list).
func (r *router) dispatchAudioRoot(w http.ResponseWriter, req *http.Request) {
	switch req.Method {
	case http.MethodPost:
		r.h.upload(w, req)
	case http.MethodGet:
		r.h.list(w, req)
	default:
		writeError(w, http.StatusMethodNotAllowed, "")
	}
}
