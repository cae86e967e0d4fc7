package dups

import (
	"context"
	"errors"
	"fmt"
)

// OutcomeStatus is the result of acting on one non-kept image.
type OutcomeStatus string

const (
	OutcomeMoved      OutcomeStatus = "moved"
	OutcomeDeleted    OutcomeStatus = "deleted"
	OutcomeUnverified OutcomeStatus = "unverified"
	OutcomeFailed     OutcomeStatus = "failed"
)

// ImageOutcome is what happened to one non-kept image.
type ImageOutcome struct {
	Image        *Image
	Action       Decision
	TargetAlbum  string
	Status       OutcomeStatus
	Err          error
	ArchivedHash string
}

// GroupOutcome is what happened to one group in a batch.
type GroupOutcome struct {
	Group           *DuplicateGroup
	Decision        Decision
	Images          []*ImageOutcome
	AlreadyResolved bool
}

// Resolution pairs a group with the user's decision. Confirmed must be set
// for DecisionDelete.
type Resolution struct {
	Group     *DuplicateGroup
	Decision  Decision
	Confirmed bool
}

// ResolveRequest is a batch of resolutions. RunID, when non-zero, is the
// journal run the outcomes are recorded under.
type ResolveRequest struct {
	RunID       int64
	Resolutions []Resolution
	Progress    ProgressFunc
	Stop        StopFunc
}

// Report summarizes a resolve batch.
type Report struct {
	ReviewAlbum *Album
	Groups      []*GroupOutcome
	Moved       int
	Deleted     int
	Unverified  int
	Failed      int
	Skipped     int
	Cancelled   bool
}

// Orchestrator carries out user decisions against the host and verifies
// every move and delete with a fresh read.
type Orchestrator struct {
	host     PhotoHost
	reviews  *ReviewAlbums
	archiver *Archiver
	journal  Journal
	clock    Clock
	logger   Logger
}

// NewOrchestrator creates an Orchestrator. archiver and journal may be nil:
// without an archiver deletes are not preceded by an archive copy, without
// a journal nothing is recorded.
func NewOrchestrator(host PhotoHost, reviews *ReviewAlbums, archiver *Archiver, journal Journal, clock Clock, logger Logger) *Orchestrator {
	return &Orchestrator{
		host:     host,
		reviews:  reviews,
		archiver: archiver,
		journal:  journal,
		clock:    clock,
		logger:   logger,
	}
}

// Resolve processes each resolution in order. Failures are isolated per
// image and per group; only an authentication failure stops the batch,
// leaving the remaining groups pending. Groups that are no longer pending
// are reported and left alone.
func (o *Orchestrator) Resolve(ctx context.Context, req ResolveRequest) (*Report, error) {
	report := &Report{}
	o.reviews.Reset()

	for i, res := range req.Resolutions {
		if stopRequested(ctx, req.Stop) {
			report.Cancelled = true
			break
		}
		g := res.Group
		reportProgress(req.Progress, Progress{
			Phase:   PhaseResolve,
			Done:    i,
			Total:   len(req.Resolutions),
			Message: fmt.Sprintf("Resolving group %d of %d", i+1, len(req.Resolutions)),
		})

		out := &GroupOutcome{Group: g, Decision: res.Decision}
		report.Groups = append(report.Groups, out)

		if g.State.Resolved() {
			out.AlreadyResolved = true
			continue
		}

		var fatal error
		switch res.Decision {
		case DecisionSkip:
			g.State = StateSkipped
			report.Skipped++
		case DecisionMove:
			fatal = o.moveGroup(ctx, out, report)
		case DecisionDelete:
			if !res.Confirmed {
				o.failGroup(g, fmt.Errorf("group %s: %w", g.Hash, ErrNotConfirmed))
				break
			}
			fatal = o.deleteGroup(ctx, out)
		default:
			o.failGroup(g, fmt.Errorf("group %s: unknown decision %q", g.Hash, res.Decision))
		}

		report.tally(out)
		o.record(req.RunID, out)

		if fatal != nil {
			return report, fatal
		}
	}

	reportProgress(req.Progress, Progress{
		Phase:   PhaseDone,
		Done:    len(report.Groups),
		Total:   len(req.Resolutions),
		Message: fmt.Sprintf("Moved %d, deleted %d, unverified %d, failed %d", report.Moved, report.Deleted, report.Unverified, report.Failed),
	})
	return report, nil
}

// moveGroup moves every non-kept image into the review album and verifies
// each move. It returns an error only when the batch must stop.
func (o *Orchestrator) moveGroup(ctx context.Context, out *GroupOutcome, report *Report) error {
	g := out.Group
	album, err := o.reviews.Ensure(ctx)
	if err != nil {
		o.failGroup(g, err)
		return fatalError(err)
	}
	report.ReviewAlbum = album

	var attempted []*ImageOutcome
	for _, img := range g.Others() {
		oc := &ImageOutcome{Image: img, Action: DecisionMove, TargetAlbum: album.ID}
		out.Images = append(out.Images, oc)

		if err := o.host.MoveImages(ctx, album.ID, []*Image{img}); err != nil {
			oc.Status = OutcomeFailed
			oc.Err = fmt.Errorf("moving image %s from album %s: %w", img.ID, img.AlbumID, err)
			o.logger.Error("move failed", "image", img.ID, "source", img.AlbumID, "target", album.ID, "error", err)
			if fatal := fatalError(err); fatal != nil {
				o.settle(g, out.Images, OutcomeMoved, StateMoved)
				return fatal
			}
			continue
		}
		attempted = append(attempted, oc)
	}

	if err := o.verify(ctx, attempted, album.ID); err != nil {
		o.settle(g, out.Images, OutcomeMoved, StateMoved)
		return err
	}
	o.settle(g, out.Images, OutcomeMoved, StateMoved)
	return nil
}

// deleteGroup archives (when configured) and deletes every non-kept image,
// then verifies each is gone from its album.
func (o *Orchestrator) deleteGroup(ctx context.Context, out *GroupOutcome) error {
	g := out.Group

	var attempted []*ImageOutcome
	for _, img := range g.Others() {
		oc := &ImageOutcome{Image: img, Action: DecisionDelete}
		out.Images = append(out.Images, oc)

		if o.archiver != nil {
			hash, err := o.archiver.Archive(ctx, img)
			if err != nil {
				oc.Status = OutcomeFailed
				oc.Err = fmt.Errorf("archiving image %s before delete: %w", img.ID, err)
				o.logger.Error("archive failed, image kept", "image", img.ID, "error", err)
				if fatal := fatalError(err); fatal != nil {
					o.settle(g, out.Images, OutcomeDeleted, StateDeleted)
					return fatal
				}
				continue
			}
			oc.ArchivedHash = hash
		}

		if err := o.host.DeleteImage(ctx, img); err != nil {
			oc.Status = OutcomeFailed
			oc.Err = fmt.Errorf("deleting image %s: %w", img.ID, err)
			o.logger.Error("delete failed", "image", img.ID, "album", img.AlbumID, "error", err)
			if fatal := fatalError(err); fatal != nil {
				o.settle(g, out.Images, OutcomeDeleted, StateDeleted)
				return fatal
			}
			continue
		}
		attempted = append(attempted, oc)
	}

	if err := o.verify(ctx, attempted, ""); err != nil {
		o.settle(g, out.Images, OutcomeDeleted, StateDeleted)
		return err
	}
	o.settle(g, out.Images, OutcomeDeleted, StateDeleted)
	return nil
}

// verify re-reads every involved album once and sets the status of each
// attempted outcome. An image counts as moved when it is absent from its
// source album and present in target; as deleted when target is empty and
// it is absent from its source. Anything else is unverified and left alone.
func (o *Orchestrator) verify(ctx context.Context, attempted []*ImageOutcome, target string) error {
	if len(attempted) == 0 {
		return nil
	}

	listings := make(map[string]map[string]bool)
	listErrs := make(map[string]error)
	load := func(albumID string) error {
		if _, ok := listings[albumID]; ok {
			return nil
		}
		if _, ok := listErrs[albumID]; ok {
			return nil
		}
		images, err := o.host.ListAlbumImages(ctx, albumID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			listErrs[albumID] = err
			return fatalError(err)
		}
		ids := make(map[string]bool, len(images))
		for _, img := range images {
			ids[img.ID] = true
		}
		listings[albumID] = ids
		return nil
	}

	if target != "" {
		if err := load(target); err != nil {
			markUnverified(attempted, err)
			return err
		}
	}
	for _, oc := range attempted {
		if err := load(oc.Image.AlbumID); err != nil {
			markUnverified(attempted, err)
			return err
		}
	}

	for _, oc := range attempted {
		img := oc.Image
		if err, ok := listErrs[img.AlbumID]; ok {
			oc.Status = OutcomeUnverified
			oc.Err = fmt.Errorf("verifying image %s in album %s: %w: %w", img.ID, img.AlbumID, unverifiedKind(oc.Action), err)
			continue
		}
		if err, ok := listErrs[target]; ok && target != "" {
			oc.Status = OutcomeUnverified
			oc.Err = fmt.Errorf("verifying image %s in album %s: %w: %w", img.ID, target, unverifiedKind(oc.Action), err)
			continue
		}

		goneFromSource := !listings[img.AlbumID][img.ID]
		inTarget := target == "" || listings[target][img.ID]
		if goneFromSource && inTarget {
			if oc.Action == DecisionMove {
				oc.Status = OutcomeMoved
			} else {
				oc.Status = OutcomeDeleted
			}
			o.logger.Info("image resolved", "image", img.ID, "action", oc.Action, "source", img.AlbumID, "target", target)
			continue
		}

		oc.Status = OutcomeUnverified
		oc.Err = fmt.Errorf("image %s: in source %s=%t, in target %q=%t: %w",
			img.ID, img.AlbumID, !goneFromSource, target, inTarget, unverifiedKind(oc.Action))
		o.logger.Warn("resolution unverified", "image", img.ID, "action", oc.Action, "source", img.AlbumID, "target", target)
	}
	return nil
}

// settle derives the group state from its image outcomes: all succeeded,
// none succeeded, or a mix.
func (o *Orchestrator) settle(g *DuplicateGroup, outcomes []*ImageOutcome, success OutcomeStatus, done GroupState) {
	ok := 0
	var firstErr error
	for _, oc := range outcomes {
		if oc.Status == "" {
			oc.Status = OutcomeFailed
			if oc.Err == nil {
				oc.Err = errors.New("not attempted")
			}
		}
		if oc.Status == success {
			ok++
		} else if firstErr == nil {
			firstErr = oc.Err
		}
	}

	switch {
	case len(outcomes) > 0 && ok == len(outcomes):
		g.State = done
		g.Reason = ""
	case ok == 0:
		g.State = StateFailed
		if firstErr != nil {
			g.Reason = firstErr.Error()
		}
	default:
		g.State = StatePartial
		g.Reason = fmt.Sprintf("%d of %d images resolved: %v", ok, len(outcomes), firstErr)
	}
}

func (o *Orchestrator) failGroup(g *DuplicateGroup, err error) {
	g.State = StateFailed
	g.Reason = err.Error()
	o.logger.Error("group failed", "hash", g.Hash, "error", err)
}

// record writes the group and its image outcomes to the journal. Journal
// failures are logged and do not affect the batch.
func (o *Orchestrator) record(runID int64, out *GroupOutcome) {
	if o.journal == nil || runID == 0 || out.AlreadyResolved {
		return
	}
	now := o.clock.Now()
	g := out.Group
	for _, oc := range out.Images {
		rec := &ImageRecord{
			RunID:        runID,
			Hash:         g.Hash,
			ImageID:      oc.Image.ID,
			FileName:     oc.Image.FileName,
			SourceAlbum:  oc.Image.AlbumID,
			TargetAlbum:  oc.TargetAlbum,
			Action:       oc.Action,
			Status:       oc.Status,
			ArchivedHash: oc.ArchivedHash,
			RecordedAt:   now,
		}
		if oc.Err != nil {
			rec.Error = oc.Err.Error()
		}
		if err := o.journal.RecordImage(rec); err != nil {
			o.logger.Warn("journal write failed", "image", oc.Image.ID, "error", err)
		}
	}
	err := o.journal.RecordGroup(&GroupRecord{
		RunID:      runID,
		Hash:       g.Hash,
		Decision:   out.Decision,
		KeeperID:   g.KeeperID,
		State:      g.State,
		Reason:     g.Reason,
		RecordedAt: now,
	})
	if err != nil {
		o.logger.Warn("journal write failed", "hash", g.Hash, "error", err)
	}
}

func (r *Report) tally(out *GroupOutcome) {
	for _, oc := range out.Images {
		switch oc.Status {
		case OutcomeMoved:
			r.Moved++
		case OutcomeDeleted:
			r.Deleted++
		case OutcomeUnverified:
			r.Unverified++
		case OutcomeFailed:
			r.Failed++
		}
	}
}

func markUnverified(outcomes []*ImageOutcome, err error) {
	for _, oc := range outcomes {
		if oc.Status == "" {
			oc.Status = OutcomeUnverified
			oc.Err = fmt.Errorf("verifying image %s: %w: %w", oc.Image.ID, unverifiedKind(oc.Action), err)
		}
	}
}

func unverifiedKind(action Decision) error {
	if action == DecisionDelete {
		return ErrDeleteUnverified
	}
	return ErrMoveUnverified
}

// fatalError returns err when it must stop the whole batch.
func fatalError(err error) error {
	if errors.Is(err, ErrAuth) {
		return err
	}
	return nil
}
