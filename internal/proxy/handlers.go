package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/a-h/templ"
	"golang.org/x/net/html"

	"ppcgate/internal/clientjs"
	"ppcgate/internal/dom"
	"ppcgate/internal/inject"
)

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	io.WriteString(w, "pong\n")
}

// handleRules renders the active pipeline for the current profile. The
// campaign query parameter switches to the campaign variant.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	campaignTraffic, _ := strconv.ParseBool(r.URL.Query().Get("campaign"))
	view, err := s.rulesView(campaignTraffic)
	if err != nil {
		s.logger.WithError(err).Error("rules preview failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(view)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	templ.Handler(rulesPage(view)).ServeHTTP(w, r)
}

func (s *Server) rulesView(campaignTraffic bool) (rulesView, error) {
	prof := s.cfg.Profiles.Current()
	view := rulesView{
		Campaign: campaignTraffic,
		Revision: s.cfg.Profiles.Revision(),
		HomePath: s.cfg.HomePath,
		Home:     prof.HomeClass,
		Script:   clientjs.FromProfile(prof),
	}
	ctx := inject.Context{Campaign: campaignTraffic, Profile: prof}
	for _, stage := range inject.Stages {
		sv := stageView{Name: string(stage)}
		for _, in := range s.cfg.Pipeline.Injectors(stage) {
			n, err := in.Render(ctx)
			if err != nil {
				return rulesView{}, err
			}
			iv := injectorView{Name: in.Name()}
			if n != nil {
				iv.Element = n.Data
				iv.ID = dom.GetAttr(n, "id")
				if n.Type == html.ElementNode && n.Data == "style" {
					iv.Body = dom.TextContent(n)
				}
			}
			sv.Injectors = append(sv.Injectors, iv)
		}
		view.Stages = append(view.Stages, sv)
	}
	return view, nil
}
