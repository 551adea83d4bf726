package splash

import "time"

const (
	defaultFadeEnabled  = true
	defaultFadeDuration = 200 * time.Millisecond
	defaultScaleEasing  = EasingEaseInOut
)

type ScalePlan struct {
	Start    float64
	End      float64
	Duration time.Duration
	Easing   Easing
}

// DisplayPlan is the launch-time decision derived from stored metadata: if
// the splash should be shown, and with which display parameters.
type DisplayPlan struct {
	Show   bool   `json:"show"`
	Reason string `json:"reason,omitempty"`

	ImageName       string `json:"imageName,omitempty"`
	LocalPath       string `json:"localPath,omitempty"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	Alt             string `json:"alt,omitempty"`

	FadeEnabled  bool          `json:"fadeEnabled"`
	FadeDuration time.Duration `json:"fadeDuration"`
	Scale        *ScalePlan    `json:"scale,omitempty"`

	// Zero means no bound.
	MinDuration time.Duration `json:"minDuration"`
	MaxDuration time.Duration `json:"maxDuration"`
}

// PlanFor decides whether meta is displayable at now. exists reports
// whether the committed asset is still on disk; nil treats it as present.
func PlanFor(meta StoredMeta, now time.Time, exists func(path string) bool) DisplayPlan {
	plan := DisplayPlan{
		FadeEnabled:  defaultFadeEnabled,
		FadeDuration: defaultFadeDuration,
	}

	switch {
	case meta.Status != StatusReady:
		plan.Reason = "status is " + string(meta.Status)
		return plan
	case !IsWithinWindow(meta.StartAt, meta.EndAt, now):
		plan.Reason = "outside time window"
		return plan
	case meta.LocalPath == "":
		plan.Reason = "no local path"
		return plan
	case exists != nil && !exists(meta.LocalPath):
		plan.Reason = "cached image is missing"
		return plan
	}

	plan.Show = true
	plan.ImageName = meta.ImageName
	plan.LocalPath = meta.LocalPath
	plan.BackgroundColor = meta.BackgroundColor
	plan.Alt = meta.Alt

	if meta.EnableFade != nil {
		plan.FadeEnabled = *meta.EnableFade
	}
	if meta.FadeDurationMs != nil {
		plan.FadeDuration = ms(*meta.FadeDurationMs)
	}
	if meta.ScaleStart != nil && meta.ScaleEnd != nil && meta.ScaleDurationMs != nil {
		easing := meta.ScaleEasing
		if easing == "" {
			easing = defaultScaleEasing
		}
		plan.Scale = &ScalePlan{
			Start:    *meta.ScaleStart,
			End:      *meta.ScaleEnd,
			Duration: ms(*meta.ScaleDurationMs),
			Easing:   easing,
		}
	}
	if meta.MinDurationMs != nil && *meta.MinDurationMs > 0 {
		plan.MinDuration = ms(*meta.MinDurationMs)
	}
	if meta.MaxDurationMs != nil && *meta.MaxDurationMs > 0 {
		plan.MaxDuration = ms(*meta.MaxDurationMs)
	}
	return plan
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}
