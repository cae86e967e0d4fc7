package server

import (
	"time"

	"smugdups/internal/dups"
)

type scanRequest struct {
	AlbumIDs []string `json:"album_ids" validate:"required,min=1,dive,required"`
}

type keeperRequest struct {
	ImageID string `json:"image_id" validate:"required"`
}

type decisionRequest struct {
	Hash      string `json:"hash" validate:"required"`
	Decision  string `json:"decision" validate:"required,oneof=move skip delete"`
	Confirmed bool   `json:"confirmed"`
}

type resolutionRequest struct {
	Decisions []decisionRequest `json:"decisions" validate:"required,min=1,dive"`
}

type jobResponse struct {
	RunID string `json:"run_id"`
}

type albumResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URLPath    string `json:"url_path,omitempty"`
	ImageCount int    `json:"image_count"`
	WebURI     string `json:"web_uri,omitempty"`
}

type statusResponse struct {
	Running    bool   `json:"running"`
	Cancelling bool   `json:"cancelling"`
	Operation  string `json:"operation,omitempty"`
	RunID      string `json:"run_id,omitempty"`
	Phase      string `json:"phase"`
	Done       int    `json:"done"`
	Total      int    `json:"total"`
	Percent    int    `json:"percent"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

type imageResponse struct {
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	AlbumID   string    `json:"album_id"`
	AlbumName string    `json:"album_name,omitempty"`
	Size      int64     `json:"size"`
	Date      time.Time `json:"date"`
	Width     int       `json:"width,omitempty"`
	Height    int       `json:"height,omitempty"`
	HasGPS    bool      `json:"has_gps"`
	WebURI    string    `json:"web_uri,omitempty"`
	Score     int       `json:"score"`
	Keeper    bool      `json:"keeper"`
}

type groupResponse struct {
	Hash   string          `json:"hash"`
	State  string          `json:"state"`
	Reason string          `json:"reason,omitempty"`
	Keeper string          `json:"keeper_id"`
	Images []imageResponse `json:"images"`
}

type groupsResponse struct {
	Groups      []groupResponse `json:"groups"`
	Duplicates  int             `json:"duplicates"`
	Reclaimable string          `json:"reclaimable"`
}

type outcomeResponse struct {
	ImageID string `json:"image_id"`
	Action  string `json:"action"`
	Target  string `json:"target_album,omitempty"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type groupOutcomeResponse struct {
	Hash            string            `json:"hash"`
	Decision        string            `json:"decision"`
	State           string            `json:"state"`
	AlreadyResolved bool              `json:"already_resolved,omitempty"`
	Images          []outcomeResponse `json:"images,omitempty"`
}

type reportResponse struct {
	ReviewAlbum string                 `json:"review_album,omitempty"`
	Moved       int                    `json:"moved"`
	Deleted     int                    `json:"deleted"`
	Unverified  int                    `json:"unverified"`
	Failed      int                    `json:"failed"`
	Skipped     int                    `json:"skipped"`
	Cancelled   bool                   `json:"cancelled"`
	Groups      []groupOutcomeResponse `json:"groups"`
}

func toAlbumResponse(a *dups.Album) albumResponse {
	return albumResponse{
		ID:         a.ID,
		Name:       a.Name,
		URLPath:    a.URLPath,
		ImageCount: a.ImageCount,
		WebURI:     a.WebURI,
	}
}

func toStatusResponse(s dups.Status) statusResponse {
	return statusResponse{
		Running:    s.Running,
		Cancelling: s.Cancelling,
		Operation:  s.Operation,
		RunID:      s.RunID,
		Phase:      string(s.Progress.Phase),
		Done:       s.Progress.Done,
		Total:      s.Progress.Total,
		Percent:    s.Progress.Percent(),
		Message:    s.Progress.Message,
		Error:      s.Error,
	}
}

func toGroupResponse(g *dups.DuplicateGroup) groupResponse {
	resp := groupResponse{
		Hash:   g.Hash,
		State:  string(g.State),
		Reason: g.Reason,
		Keeper: g.KeeperID,
		Images: make([]imageResponse, 0, len(g.Images)),
	}
	for _, img := range g.Images {
		resp.Images = append(resp.Images, imageResponse{
			ID:        img.ID,
			FileName:  img.FileName,
			AlbumID:   img.AlbumID,
			AlbumName: img.AlbumName,
			Size:      img.Size,
			Date:      img.Date,
			Width:     img.Width,
			Height:    img.Height,
			HasGPS:    img.HasGPS(),
			WebURI:    img.WebURI,
			Score:     g.Scores[img.ID],
			Keeper:    img.ID == g.KeeperID,
		})
	}
	return resp
}

func toReportResponse(r *dups.Report) reportResponse {
	resp := reportResponse{
		Moved:      r.Moved,
		Deleted:    r.Deleted,
		Unverified: r.Unverified,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		Cancelled:  r.Cancelled,
		Groups:     make([]groupOutcomeResponse, 0, len(r.Groups)),
	}
	if r.ReviewAlbum != nil {
		resp.ReviewAlbum = r.ReviewAlbum.Name
	}
	for _, out := range r.Groups {
		g := groupOutcomeResponse{
			Hash:            out.Group.Hash,
			Decision:        string(out.Decision),
			State:           string(out.Group.State),
			AlreadyResolved: out.AlreadyResolved,
		}
		for _, res := range out.Images {
			o := outcomeResponse{
				ImageID: res.Image.ID,
				Action:  string(res.Action),
				Target:  res.TargetAlbum,
				Status:  string(res.Status),
			}
			if res.Err != nil {
				o.Error = res.Err.Error()
			}
			g.Images = append(g.Images, o)
		}
		resp.Groups = append(resp.Groups, g)
	}
	return resp
}
