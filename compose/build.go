package compose

import (
	"github.com/pithecene-io/deliorder/types"
)

// Build validates rec and converts it into its typed order variant.
// Only the fields the action uses are carried over.
func Build(rec types.OrderRecord) (types.Order, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}
	// Validate already rejected unknown actions.
	action, _ := types.ParseAction(rec.Action)

	dest := types.Target{
		AttachmentName: rec.AttachmentName,
		ExecutionPath:  rec.ExecutionPath,
	}

	switch action {
	case types.ActionCreate:
		o := &types.Create{Dest: dest, URL: rec.AttachmentURL, Overwrite: rec.Overwrite}
		if len(rec.AttachmentData) > 0 {
			o.Payload = &types.Payload{Data: rec.AttachmentData, MimeType: rec.MimeType}
		}
		return o, nil
	case types.ActionMove:
		return &types.Move{Dest: dest, SourcePath: rec.SourcePath}, nil
	case types.ActionCopy:
		return &types.Copy{Dest: dest}, nil
	case types.ActionRename:
		return &types.Rename{Dest: dest, EditingName: rec.EditingName}, nil
	case types.ActionExecute:
		return &types.Execute{Dest: dest, UseVSCode: rec.UseVSCode}, nil
	case types.ActionDelete:
		return &types.Delete{Dest: dest, Directory: rec.AttachmentType == types.AttachmentFolder}, nil
	case types.ActionDecompress:
		return &types.Decompress{Dest: dest}, nil
	default:
		return nil, invalid(types.UndefinedAction)
	}
}

// BuildAll converts every record, stopping at the first invalid one.
func BuildAll(recs []types.OrderRecord) ([]types.Order, error) {
	orders := make([]types.Order, 0, len(recs))
	for i, rec := range recs {
		o, err := Build(rec)
		if err != nil {
			return nil, &OrderError{Index: i, Err: err}
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// FromPackageRecord rebuilds a package from its wire form. Records that
// were valid when submitted stay valid, so a failure here means the stored
// package was tampered with or written by an incompatible client.
func FromPackageRecord(rec types.PackageRecord) (*types.Package, error) {
	orders, err := BuildAll(rec.Orders)
	if err != nil {
		return nil, err
	}
	pkg := &types.Package{
		SerialNumber: rec.SerialNumber,
		Author:       rec.Author,
		Orders:       orders,
		CreatedAt:    rec.CreatedAt.UTC(),
		ValidUntil:   rec.ValidUntil.UTC(),
		State:        types.PackageSubmitted,
	}
	if err := pkg.Validate(); err != nil {
		return nil, err
	}
	return pkg, nil
}
