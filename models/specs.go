package models

// ImageSpec identifies one container image publish: a matrix entry name
// plus the resolved version tag.
type ImageSpec struct {
	Name string
	Tag  string
}

func (s ImageSpec) String() string {
	return s.Name + ":" + s.Tag
}

// ChartSpec identifies one deployment chart publish. Charts are versioned
// identically to the images they reference.
type ChartSpec struct {
	Name         string
	AppVersion   string
	ChartVersion string
}
