package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"pixrepo/internal/domain"
	"pixrepo/internal/service"
	"pixrepo/internal/uploader"
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List, upload, tag and delete images of a source",
}

func imageService(cmd *cobra.Command, sourceID string) (*service.ImageService, error) {
	svc, err := openServices(cmd.Context())
	if err != nil {
		return nil, err
	}
	return svc.Sources.Images(cmd.Context(), sourceID)
}

var imagesListCmd = &cobra.Command{
	Use:   "list <source-id>",
	Short: "List images with their metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		images, err := imageService(cmd, args[0])
		if err != nil {
			return err
		}
		items, err := images.ListImages(cmd.Context())
		if err != nil {
			return fmt.Errorf("list images: %w", err)
		}
		return printImages(cmd, items)
	},
}

var imagesUploadCmd = &cobra.Command{
	Use:   "upload <source-id> <file>...",
	Short: "Upload one image, or several as a batch",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		tags, _ := cmd.Flags().GetString("tags")

		files := make([]uploader.File, 0, len(args)-1)
		for _, path := range args[1:] {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			files = append(files, uploader.File{Name: filepath.Base(path), Data: data})
		}

		images, err := imageService(cmd, args[0])
		if err != nil {
			return err
		}

		if len(files) == 1 {
			item, err := images.UploadImage(cmd.Context(), service.UploadRequest{
				Data:        files[0].Data,
				FileName:    files[0].Name,
				Name:        name,
				Description: description,
				Tags:        service.ParseTags(tags),
			})
			if err != nil {
				return fmt.Errorf("upload: %w", err)
			}
			return printImages(cmd, []domain.ImageItem{*item})
		}

		var last uploader.Event
		for ev := range uploader.Stream(cmd.Context(), images, uploader.BatchRequest{
			Files:       files,
			Name:        name,
			Description: description,
			Tags:        service.ParseTags(tags),
		}) {
			last = ev
			if !ev.Done {
				p := ev.Progress
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] %s\n", p.Completed+p.Failed, p.Total, p.Current)
			}
		}

		for _, item := range last.Progress.Items {
			if item.Status == domain.UploadStatusError {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %s\n", item.FileName, item.Message)
			}
		}
		if err := printImages(cmd, last.Images); err != nil {
			return err
		}
		if last.Progress.Failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", last.Progress.Failed, last.Progress.Total)
		}
		return nil
	},
}

var imagesDeleteCmd = &cobra.Command{
	Use:   "delete <source-id> <name>...",
	Short: "Delete images and their metadata",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		names := args[1:]
		if id != "" && len(names) > 1 {
			return fmt.Errorf("--id needs exactly one name")
		}
		refs := make([]service.ImageRef, len(names))
		for i, name := range names {
			refs[i] = service.ImageRef{ID: id, Name: name}
		}

		images, err := imageService(cmd, args[0])
		if err != nil {
			return err
		}
		var failed int
		for _, r := range images.DeleteImages(cmd.Context(), refs) {
			if r.Err != nil {
				failed++
				fmt.Fprintf(cmd.ErrOrStderr(), "failed %s: %v\n", r.Ref.Name, r.Err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", r.Ref.Name)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d deletes failed", failed, len(refs))
		}
		return nil
	},
}

var imagesTagCmd = &cobra.Command{
	Use:   "tag <source-id> <name>",
	Short: "Update tags, description or dimensions of an image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		var patch service.MetadataPatch
		if flags.Changed("tags") {
			tags, _ := flags.GetString("tags")
			patch.Tags = service.ParseTags(tags)
		}
		if flags.Changed("description") {
			description, _ := flags.GetString("description")
			patch.Description = &description
		}
		if flags.Changed("width") {
			width, _ := flags.GetInt("width")
			patch.Width = &width
		}
		if flags.Changed("height") {
			height, _ := flags.GetInt("height")
			patch.Height = &height
		}
		id, _ := flags.GetString("id")

		images, err := imageService(cmd, args[0])
		if err != nil {
			return err
		}
		item, err := images.UpdateImageMetadata(cmd.Context(), id, args[1], patch)
		if err != nil {
			return fmt.Errorf("update metadata: %w", err)
		}
		return printImages(cmd, []domain.ImageItem{*item})
	},
}

func printImages(cmd *cobra.Command, items []domain.ImageItem) error {
	return render(cmd.OutOrStdout(), output, toImageViews(items),
		[]string{"ID", "NAME", "SIZE", "TAGS", "URL"},
		func(v imageView) []string {
			return []string{v.ID, v.Name, strconv.FormatInt(v.Size, 10), fmt.Sprint(v.Tags), v.RawURL}
		})
}

func init() {
	rootCmd.AddCommand(imagesCmd)
	imagesCmd.AddCommand(imagesListCmd, imagesUploadCmd, imagesDeleteCmd, imagesTagCmd)

	imagesUploadCmd.Flags().String("name", "", "Target name; a batch prefixes each file with it")
	imagesUploadCmd.Flags().String("description", "", "Description recorded in the metadata")
	imagesUploadCmd.Flags().String("tags", "", "Comma separated tags")

	imagesDeleteCmd.Flags().String("id", "", "Image id, when known (single name only)")

	imagesTagCmd.Flags().String("id", "", "Image id to record when no metadata exists yet")
	imagesTagCmd.Flags().String("tags", "", "Comma separated tags; empty clears them")
	imagesTagCmd.Flags().String("description", "", "New description")
	imagesTagCmd.Flags().Int("width", 0, "Width in pixels")
	imagesTagCmd.Flags().Int("height", 0, "Height in pixels")
}
