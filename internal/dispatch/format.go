package dispatch

import (
	"fmt"

	"sellerbot/internal/marketplace"
)

// Message templates are fixed plain text; recipients see exactly these.

func ReviewAlert(r marketplace.Review) string {
	return fmt.Sprintf("📝 Новый отзыв:\n\n%s\n\nТовар: %s", r.Text, r.ProductDetails.SupplierArticle)
}

func QuestionAlert(q marketplace.Question) string {
	return fmt.Sprintf("❓ Новый вопрос:\n\n%s\n\nТовар: %s", q.Text, q.ProductDetails.SupplierArticle)
}

// SalesBurst summarizes the sales that appeared inside one polling window.
func SalesBurst(sales []marketplace.Sale) string {
	var total float64
	for _, s := range sales {
		total += s.ForPay
	}
	return fmt.Sprintf("🛒 Новые продажи: %d шт. — %.0f ₽", len(sales), total)
}
