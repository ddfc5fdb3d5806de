// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ledger enters invoices into the bookkeeping platform. The
// platform has no API — entries go in through its web form, driven over a
// remote WebDriver session. Callers get a single opaque Submit: the form
// sequence either completes through the confirmation dialog or the whole
// submission is treated as failed. There is no recovering a half-filled
// form; the pipeline retries the whole email instead.
package ledger

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tebeka/selenium"

	"github.com/bcem/invoicebot/internal/invoice"
)

// Fixed service-row values: every entry this pipeline makes is a weekly
// timesheet billed by the hour.
const (
	serviceType     = "Timesheet"
	rateType        = "Hours"
	workDescription = "Week work"
)

// Config holds the platform session settings.
type Config struct {
	BaseURL      string
	Username     string
	Password     string
	WebDriverURL string
}

// Client drives one logged-in browser session against the bookkeeping
// platform. It is single-session and stateful — submissions must not be
// interleaved, which the sequential pipeline guarantees.
type Client struct {
	wd       selenium.WebDriver
	baseURL  string
	username string
	password string
	loggedIn bool
}

// New opens a browser session against the remote WebDriver endpoint and
// navigates to the platform's login page. Login itself is deferred until
// the first Submit so that a cycle with zero new emails never touches the
// platform.
func New(cfg Config) (*Client, error) {
	caps := selenium.Capabilities{"browserName": "firefox"}

	wd, err := selenium.NewRemote(caps, cfg.WebDriverURL)
	if err != nil {
		return nil, fmt.Errorf("connect to webdriver %s: %w", cfg.WebDriverURL, err)
	}

	if err := wd.SetImplicitWaitTimeout(10 * time.Second); err != nil {
		wd.Quit()
		return nil, fmt.Errorf("set webdriver wait timeout: %w", err)
	}
	if err := wd.MaximizeWindow(""); err != nil {
		slog.Warn("failed to maximise browser window", "error", err)
	}

	if err := wd.Get(cfg.BaseURL); err != nil {
		wd.Quit()
		return nil, fmt.Errorf("open ledger platform %s: %w", cfg.BaseURL, err)
	}

	slog.Info("ledger browser session created", "base_url", cfg.BaseURL)
	return &Client{
		wd:       wd,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
	}, nil
}

// Close ends the browser session.
func (c *Client) Close() {
	if err := c.wd.Quit(); err != nil {
		slog.Warn("failed to close webdriver session", "error", err)
	}
}

// Submit enters one invoice and confirms the save dialog. Any failed step
// fails the submission as a whole.
func (c *Client) Submit(inv *invoice.Invoice) error {
	if !c.loggedIn {
		if err := c.login(); err != nil {
			return fmt.Errorf("ledger login: %w", err)
		}
	}

	if err := c.openInvoicePage(); err != nil {
		return fmt.Errorf("open invoice page: %w", err)
	}
	if err := c.fillClientData(inv); err != nil {
		return fmt.Errorf("fill client data: %w", err)
	}
	if err := c.fillServiceData(inv); err != nil {
		return fmt.Errorf("fill service data: %w", err)
	}
	if err := c.sendKeysByID("CUSTOMER_NOTE", inv.InternalNote()); err != nil {
		return fmt.Errorf("fill internal note: %w", err)
	}
	if err := c.saveAndConfirm(); err != nil {
		return fmt.Errorf("save invoice: %w", err)
	}

	slog.Info("invoice submitted to ledger", "invoice_number", inv.InvoiceNumber)
	return nil
}

func (c *Client) login() error {
	if err := c.sendKeys(selenium.ByName, "UserName", c.username); err != nil {
		return err
	}
	if err := c.sendKeys(selenium.ByName, "UserPassword", c.password); err != nil {
		return err
	}
	if err := c.click(selenium.ByID, "kt_login_singin_form_submit_button"); err != nil {
		return err
	}
	c.loggedIn = true
	return nil
}

func (c *Client) openInvoicePage() error {
	return c.wd.Get(c.baseURL + "/salesinvoice/show")
}

func (c *Client) fillClientData(inv *invoice.Invoice) error {
	if err := c.selectByVisibleText("client", inv.ClientName); err != nil {
		return err
	}

	details := fmt.Sprintf("Sheet: %s\nInvoice number: %s", inv.TimesheetID, inv.InvoiceNumber)
	if err := c.sendKeysByID("INVOICE_NOTE", details); err != nil {
		return err
	}

	// The date inputs are readonly datepickers; strip the attribute so
	// normalised dates can be typed straight in.
	if err := c.fillReadonlyDate("INVOICE_DATE", inv.InvoiceDate); err != nil {
		return err
	}
	return c.fillReadonlyDate("INVOICE_DUE_ON", inv.PaymentDueDate)
}

func (c *Client) fillServiceData(inv *invoice.Invoice) error {
	if err := c.selectByVisibleText("Service", serviceType); err != nil {
		return err
	}
	if err := c.selectByVisibleText("Type", rateType); err != nil {
		return err
	}
	if err := c.selectByVisibleText("Vat", inv.VATRate+"%"); err != nil {
		return err
	}
	if err := c.sendKeysByID("Workdescription", workDescription); err != nil {
		return err
	}
	if err := c.sendKeysByID("Quantity", inv.HoursWorked); err != nil {
		return err
	}
	return c.sendKeysByID("Rate", inv.HourRate)
}

// saveAndConfirm scrolls to the save button, clicks it, and clicks through
// the confirmation dialog.
func (c *Client) saveAndConfirm() error {
	if _, err := c.wd.ExecuteScript("window.scrollTo(0, document.body.scrollHeight);", nil); err != nil {
		return fmt.Errorf("scroll to save button: %w", err)
	}
	if err := c.click(selenium.ByID, "btnSaveInvoice"); err != nil {
		return err
	}

	if _, err := c.wd.ExecuteScript("window.scrollTo(0, 0);", nil); err != nil {
		return fmt.Errorf("scroll to confirmation: %w", err)
	}
	if err := c.click(selenium.ByID, "1"); err != nil {
		return err
	}
	return c.click(selenium.ByClassName, "swal2-confirm")
}

// --- element helpers ---

func (c *Client) sendKeys(by, selector, text string) error {
	elem, err := c.wd.FindElement(by, selector)
	if err != nil {
		return fmt.Errorf("find %s=%s: %w", by, selector, err)
	}
	if err := elem.SendKeys(text); err != nil {
		return fmt.Errorf("type into %s=%s: %w", by, selector, err)
	}
	return nil
}

func (c *Client) sendKeysByID(id, text string) error {
	return c.sendKeys(selenium.ByID, id, text)
}

func (c *Client) click(by, selector string) error {
	elem, err := c.wd.FindElement(by, selector)
	if err != nil {
		return fmt.Errorf("find %s=%s: %w", by, selector, err)
	}
	if err := elem.Click(); err != nil {
		return fmt.Errorf("click %s=%s: %w", by, selector, err)
	}
	return nil
}

// selectByVisibleText picks a dropdown option by its label.
func (c *Client) selectByVisibleText(selectID, text string) error {
	xpath := fmt.Sprintf(`//select[@id=%q]/option[normalize-space(text())=%q]`, selectID, text)
	opt, err := c.wd.FindElement(selenium.ByXPATH, xpath)
	if err != nil {
		return fmt.Errorf("option %q in select #%s: %w", text, selectID, err)
	}
	if err := opt.Click(); err != nil {
		return fmt.Errorf("select %q in #%s: %w", text, selectID, err)
	}
	return nil
}

// fillReadonlyDate removes the readonly attribute from a datepicker input
// and types the value directly.
func (c *Client) fillReadonlyDate(id, value string) error {
	script := fmt.Sprintf(`document.getElementById(%q).removeAttribute('readonly');`, id)
	if _, err := c.wd.ExecuteScript(script, nil); err != nil {
		return fmt.Errorf("unlock date field #%s: %w", id, err)
	}
	return c.sendKeysByID(id, value)
}
