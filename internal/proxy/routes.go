package proxy

import "net/http"

// Mount registers every spec §6 endpoint onto mux: the streaming endpoint,
// the episode-discovery endpoints, and the catalog endpoints.
func Mount(mux *http.ServeMux, streamHandler *Handler, episodeHandler *EpisodeHandler, catalogHandler *CatalogHandler) {
	mux.HandleFunc("GET /m3u8", streamHandler.ServeM3U8)
	mux.HandleFunc("HEAD /m3u8", streamHandler.ServeM3U8)
	mux.HandleFunc("OPTIONS /m3u8", streamHandler.ServeM3U8)

	mux.HandleFunc("GET /episode/servers", episodeHandler.ServeServers)
	mux.HandleFunc("GET /episode/sources", episodeHandler.ServeSources)
	mux.HandleFunc("POST /episode/prewarm", episodeHandler.ServePrewarm)

	mux.HandleFunc("GET /home", catalogHandler.ServeHome)
	mux.HandleFunc("GET /search", catalogHandler.ServeSearch)
	mux.HandleFunc("GET /anime/{id}", catalogHandler.ServeAnime)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
}
